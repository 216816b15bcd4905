package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/Spok95/wb-materials-bot/internal/infra/metrics"
	"github.com/Spok95/wb-materials-bot/internal/jobs"
)

const HeaderRequestID = "X-Request-Id"

var ErrNotConfirmed = errors.New("queue: broker rejected message")

// confirmation подтверждение брокера на одну публикацию.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

type declarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

type channel interface {
	declarer
	publishConfirmed(ctx context.Context, key string, msg amqp.Publishing) (confirmation, error)
	Close() error
}

// amqpChannel канал в режиме подтверждений.
type amqpChannel struct {
	*amqp.Channel
}

func (c amqpChannel) publishConfirmed(ctx context.Context, key string, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.PublishWithDeferredConfirmWithContext(ctx, "", key, false, false, msg)
	if err != nil {
		return nil, err
	}
	return dc, nil
}

// Publisher публикует задания в именованные очереди RabbitMQ.
type Publisher struct {
	mu      sync.Mutex
	ch      channel
	retries uint64
	delay   time.Duration
	log     *logrus.Entry
}

func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("queue: dial: %w", err)
	}
	return conn, nil
}

func NewPublisher(conn *amqp.Connection, retries uint64, delay time.Duration, log *logrus.Entry) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("queue: open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue: confirm mode: %w", err)
	}
	return newPublisher(amqpChannel{ch}, retries, delay, log)
}

func newPublisher(ch channel, retries uint64, delay time.Duration, log *logrus.Entry) (*Publisher, error) {
	for _, q := range jobs.Queues {
		if err := declare(ch, q); err != nil {
			_ = ch.Close()
			return nil, err
		}
	}
	return &Publisher{ch: ch, retries: retries, delay: delay, log: log}, nil
}

// DeadLetter имя очереди недоставленных сообщений для name.
func DeadLetter(name string) string { return name + ".dead" }

// declare объявляет quorum-очередь name и её очередь недоставленных.
func declare(ch declarer, name string) error {
	if _, err := ch.QueueDeclare(DeadLetter(name), true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue: declare %s: %w", DeadLetter(name), err)
	}
	args := amqp.Table{
		"x-queue-type":              "quorum",
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DeadLetter(name),
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, args); err != nil {
		return fmt.Errorf("queue: declare %s: %w", name, err)
	}
	return nil
}

// Publish кладёт payload в очередь как JSON и ждёт подтверждения брокера.
// Неудачная отправка повторяется retries раз с паузой delay.
func (p *Publisher) Publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: marshal %s payload: %w", queue, err)
	}
	requestID := uuid.NewString()
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    requestID,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{HeaderRequestID: requestID},
		Body:         body,
	}
	log := p.log.WithFields(logrus.Fields{"queue": queue, "request_id": requestID})

	attempt := 0
	backoff := retry.WithMaxRetries(p.retries, retry.NewConstant(p.delay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p.mu.Lock()
		conf, err := p.ch.publishConfirmed(ctx, queue, msg)
		p.mu.Unlock()
		if err == nil {
			var acked bool
			if acked, err = conf.WaitContext(ctx); err == nil && !acked {
				err = ErrNotConfirmed
			}
		}
		if err != nil {
			log.WithError(err).WithField("attempt", attempt).Warn("publish failed")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		metrics.QueuePublish.WithLabelValues(queue, metrics.ResultError).Inc()
		return fmt.Errorf("queue: publish %s: %w", queue, err)
	}
	metrics.QueuePublish.WithLabelValues(queue, metrics.ResultOK).Inc()
	log.Debug("published")
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}
