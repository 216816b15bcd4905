package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/Spok95/wb-materials-bot/internal/domain"
)

var (
	ErrMalformedPayload = errors.New("queue: malformed payload")
	ErrPermanent        = errors.New("queue: permanent failure")
)

// headerDeliveryCount число прошлых неудачных доставок, его ставит quorum-очередь.
const headerDeliveryCount = "x-delivery-count"

// Permanent помечает ошибку, которую повтор не исправит. Такое сообщение
// сразу уходит в очередь недоставленных.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Handler обрабатывает одно сообщение. Ошибка возвращает сообщение в очередь
// после паузы, конфликт предметной области подтверждает его, битое сообщение
// и Permanent отправляют в очередь недоставленных.
type Handler func(ctx context.Context, body []byte) error

// RetryPolicy повторные доставки сообщения после ошибки обработчика.
type RetryPolicy struct {
	// MaxDeliveries после стольких доставок сообщение уходит в очередь недоставленных.
	MaxDeliveries int
	// Delay пауза перед возвратом сообщения в очередь.
	Delay time.Duration
}

const (
	DefaultMaxDeliveries = 5
	DefaultRetryDelay    = 10 * time.Second
)

func (p RetryPolicy) maxDeliveries() int {
	if p.MaxDeliveries <= 0 {
		return DefaultMaxDeliveries
	}
	return p.MaxDeliveries
}

// deliveries номер текущей доставки, начиная с 1.
func deliveries(d amqp.Delivery) int {
	switch v := d.Headers[headerDeliveryCount].(type) {
	case int64:
		return int(v) + 1
	case int32:
		return int(v) + 1
	case int:
		return v + 1
	}
	return 1
}

// Decode разбирает тело сообщения. Ошибка разбора не повторяется.
func Decode[T any](body []byte) (T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return v, nil
}

type Consumer struct {
	ch     *amqp.Channel
	policy RetryPolicy
	log    *logrus.Entry
}

func NewConsumer(conn *amqp.Connection, policy RetryPolicy, log *logrus.Entry) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("queue: open channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue: qos: %w", err)
	}
	return &Consumer{ch: ch, policy: policy, log: log}, nil
}

// Consume читает очередь до отмены ctx. Сообщение подтверждается только
// после успешного завершения h.
func (c *Consumer) Consume(ctx context.Context, queue string, h Handler) error {
	if err := declare(c.ch, queue); err != nil {
		return err
	}
	msgs, err := c.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue: consume %s: %w", queue, err)
	}
	log := c.log.WithField("queue", queue)
	log.Info("consumer started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("queue: %s: delivery channel closed", queue)
			}
			handle(ctx, log, d, h, c.policy)
		}
	}
}

func (c *Consumer) Close() error { return c.ch.Close() }

func handle(ctx context.Context, log *logrus.Entry, d amqp.Delivery, h Handler, policy RetryPolicy) {
	if rid, ok := d.Headers[HeaderRequestID].(string); ok {
		log = log.WithField("request_id", rid)
	}
	n := deliveries(d)
	log = log.WithField("delivery", n)

	err := h(ctx, d.Body)
	switch {
	case err == nil:
		if aerr := d.Ack(false); aerr != nil {
			log.WithError(aerr).Error("ack failed")
		}
	case domain.IsConflict(err):
		log.WithError(err).Warn("message dropped")
		if aerr := d.Ack(false); aerr != nil {
			log.WithError(aerr).Error("ack failed")
		}
	case errors.Is(err, ErrMalformedPayload), errors.Is(err, ErrPermanent):
		deadLetter(log.WithError(err), d, "message dead-lettered")
	case n >= policy.maxDeliveries():
		deadLetter(log.WithError(err), d, "delivery limit reached, message dead-lettered")
	default:
		log.WithError(err).WithField("retry_in", policy.Delay).Error("handler failed, requeue")
		if policy.Delay > 0 {
			t := time.NewTimer(policy.Delay)
			select {
			case <-ctx.Done():
			case <-t.C:
			}
			t.Stop()
		}
		if nerr := d.Nack(false, true); nerr != nil {
			log.WithError(nerr).Error("nack failed")
		}
	}
}

func deadLetter(log *logrus.Entry, d amqp.Delivery, msg string) {
	log.Error(msg)
	if nerr := d.Nack(false, false); nerr != nil {
		log.WithError(nerr).Error("nack failed")
	}
}
