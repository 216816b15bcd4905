package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const EnvDev = "dev"

// New логгер сервиса. В dev текстовый вывод, в остальных окружениях JSON.
// Некорректный уровень заменяется на info.
func New(service, env, level string) *logrus.Entry {
	return NewWithOutput(os.Stdout, service, env, level)
}

func NewWithOutput(w io.Writer, service, env, level string) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(formatter(env))

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	if env == EnvDev && level == "" {
		lvl = logrus.DebugLevel
	}
	l.SetLevel(lvl)

	return l.WithFields(logrus.Fields{
		"service": service,
		"env":     env,
	})
}

func formatter(env string) logrus.Formatter {
	fieldMap := logrus.FieldMap{
		logrus.FieldKeyTime:  "ts",
		logrus.FieldKeyMsg:   "msg",
		logrus.FieldKeyLevel: "level",
	}
	if env == EnvDev {
		return &logrus.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        time.RFC3339Nano,
			FieldMap:               fieldMap,
			DisableLevelTruncation: true,
		}
	}
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        fieldMap,
	}
}
