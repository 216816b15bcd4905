package validate

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

const DefaultErrorMessage = "Некорректный ввод."

// Result результат проверки ввода. Медиа ошибки показывается пользователю
// вместе с текстом, если задано.
type Result struct {
	Valid          bool
	ErrorText      string
	ErrorMediaID   string
	ErrorMediaType string
}

func OK() Result { return Result{Valid: true} }

// Image сведения о присланной фотографии.
type Image struct {
	FileID string
	Width  int
	Height int
}

type Validator[T any] interface {
	Validate(in T) Result
}

// Func адаптер обычной функции к Validator.
type Func[T any] func(in T) Result

func (f Func[T]) Validate(in T) Result { return f(in) }

// Chain выполняет валидаторы по порядку и останавливается на первой ошибке.
type Chain[T any] []Validator[T]

func (c Chain[T]) Validate(in T) Result {
	for _, v := range c {
		if r := v.Validate(in); !r.Valid {
			return r
		}
	}
	return OK()
}

// Spec декларативное описание валидатора из схемы шаблона.
type Spec struct {
	Type           string    `json:"type"`
	Limit          int       `json:"limit,omitempty"`
	Tolerance      *float64  `json:"tolerance,omitempty"`
	TargetRatio    []float64 `json:"target_ratio,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	ErrorMediaID   string    `json:"error_media_id,omitempty"`
	ErrorMediaType string    `json:"error_media_type,omitempty"`
}

func (s Spec) fail(text string) Result {
	return Result{ErrorText: text, ErrorMediaID: s.ErrorMediaID, ErrorMediaType: s.ErrorMediaType}
}

func (s Spec) message() string {
	if s.ErrorMessage == "" {
		return DefaultErrorMessage
	}
	return s.ErrorMessage
}

func (s Spec) tolerance() float64 {
	if s.Tolerance == nil {
		return 0.1
	}
	return *s.Tolerance
}

type MaxLength struct {
	Spec
}

// Validate считает символы, а не байты. В тексте ошибки доступны {limit} и {count}.
func (v MaxLength) Validate(text string) Result {
	n := utf8.RuneCountInString(text)
	if n <= v.Limit {
		return OK()
	}
	msg := strings.NewReplacer(
		"{limit}", strconv.Itoa(v.Limit),
		"{count}", strconv.Itoa(n),
	).Replace(v.message())
	return v.fail(msg)
}

type MaxLines struct {
	Spec
}

func (v MaxLines) Validate(text string) Result {
	if CountLines(text) > v.Limit {
		return v.fail(v.message())
	}
	return OK()
}

// CountLines считает строки так же, как их видит пользователь:
// завершающий перевод строки новой строки не добавляет.
func CountLines(text string) int {
	if text == "" {
		return 0
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

type Square struct {
	Spec
}

func (v Square) Validate(img Image) Result {
	if img.Height <= 0 || math.Abs(float64(img.Width)/float64(img.Height)-1) > v.tolerance() {
		return v.fail(v.message())
	}
	return OK()
}

type AspectRatio struct {
	Spec
}

func (v AspectRatio) Validate(img Image) Result {
	if len(v.TargetRatio) != 2 || v.TargetRatio[1] == 0 || img.Height <= 0 {
		return v.fail(v.message())
	}
	target := v.TargetRatio[0] / v.TargetRatio[1]
	if math.Abs(float64(img.Width)/float64(img.Height)-target) > v.tolerance() {
		return v.fail(v.message())
	}
	return OK()
}

// TextChain собирает цепочку текстовых валидаторов. Неизвестные типы пропускаются.
func TextChain(specs []Spec) Chain[string] {
	var c Chain[string]
	for _, s := range specs {
		switch s.Type {
		case "max_length":
			c = append(c, MaxLength{s})
		case "max_lines":
			c = append(c, MaxLines{s})
		}
	}
	return c
}

// ImageChain собирает цепочку валидаторов изображений. Неизвестные типы пропускаются.
func ImageChain(specs []Spec) Chain[Image] {
	var c Chain[Image]
	for _, s := range specs {
		switch s.Type {
		case "is_square":
			c = append(c, Square{s})
		case "aspect_ratio":
			c = append(c, AspectRatio{s})
		}
	}
	return c
}
