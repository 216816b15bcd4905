package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/wb-materials-bot/internal/domain"
	"github.com/Spok95/wb-materials-bot/internal/jobs"
)

type fakeConfirm bool

func (c fakeConfirm) WaitContext(context.Context) (bool, error) { return bool(c), nil }

type fakeChannel struct {
	failures  int
	nacks     int
	published []amqp.Publishing
	keys      []string
	declared  []string
	args      map[string]amqp.Table
	attempts  int
}

func (f *fakeChannel) publishConfirmed(_ context.Context, key string, msg amqp.Publishing) (confirmation, error) {
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("channel busy")
	}
	if f.nacks > 0 {
		f.nacks--
		return fakeConfirm(false), nil
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return fakeConfirm(true), nil
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	f.declared = append(f.declared, name)
	if f.args == nil {
		f.args = map[string]amqp.Table{}
	}
	f.args[name] = args
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) Close() error { return nil }

func nullLog() (*logrus.Entry, *logtest.Hook) {
	l, hook := logtest.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(l), hook
}

func TestPublishRetriesThenSucceeds(t *testing.T) {
	ch := &fakeChannel{failures: 2}
	log, hook := nullLog()
	p, err := newPublisher(ch, 3, time.Millisecond, log)
	require.NoError(t, err)
	wantDeclared := []string{}
	for _, q := range jobs.Queues {
		wantDeclared = append(wantDeclared, q, DeadLetter(q))
	}
	assert.ElementsMatch(t, wantDeclared, ch.declared)
	assert.Equal(t, "quorum", ch.args[jobs.QueueProcessingSupply]["x-queue-type"])
	assert.Equal(t, DeadLetter(jobs.QueueProcessingSupply), ch.args[jobs.QueueProcessingSupply]["x-dead-letter-routing-key"])

	require.NoError(t, p.Publish(context.Background(), jobs.QueueProcessingSupply, jobs.ProcessSupply{AssemblyTaskID: 77}))
	assert.Equal(t, 3, ch.attempts)
	require.Len(t, ch.published, 1)

	msg := ch.published[0]
	assert.Equal(t, jobs.QueueProcessingSupply, ch.keys[0])
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.JSONEq(t, `{"assembly_task_id":77}`, string(msg.Body))
	rid, ok := msg.Headers[HeaderRequestID].(string)
	require.True(t, ok)
	assert.Equal(t, msg.MessageId, rid)

	warns := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warns++
		}
	}
	assert.Equal(t, 2, warns)
}

func TestPublishRetriesBrokerNack(t *testing.T) {
	ch := &fakeChannel{nacks: 1}
	log, _ := nullLog()
	p, err := newPublisher(ch, 2, time.Millisecond, log)
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), jobs.QueueProcessingSupply, jobs.ProcessSupply{AssemblyTaskID: 1}))
	assert.Equal(t, 2, ch.attempts)
	assert.Len(t, ch.published, 1)

	ch.nacks = 10
	err = p.Publish(context.Background(), jobs.QueueProcessingSupply, jobs.ProcessSupply{AssemblyTaskID: 2})
	assert.ErrorIs(t, err, ErrNotConfirmed)
}

func TestPublishGivesUp(t *testing.T) {
	ch := &fakeChannel{failures: 10}
	log, _ := nullLog()
	p, err := newPublisher(ch, 2, time.Millisecond, log)
	require.NoError(t, err)

	err = p.Publish(context.Background(), jobs.QueueGenerateImage, map[string]any{"x": 1})
	require.Error(t, err)
	assert.Equal(t, 3, ch.attempts)
	assert.Empty(t, ch.published)
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (a *fakeAck) Ack(uint64, bool) error { a.acked = true; return nil }

func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

func (a *fakeAck) Reject(_ uint64, requeue bool) error { return a.Nack(0, false, requeue) }

func TestHandleAckPolicy(t *testing.T) {
	policy := RetryPolicy{MaxDeliveries: 3, Delay: time.Millisecond}
	cases := []struct {
		name        string
		err         error
		delivery    any
		wantAck     bool
		wantNack    bool
		wantRequeue bool
		wantLevel   logrus.Level
	}{
		{"success", nil, nil, true, false, false, logrus.InfoLevel},
		{"conflict", domain.Conflict(domain.ErrAlreadyBatched), nil, true, false, false, logrus.WarnLevel},
		{"malformed", fmt.Errorf("%w: eof", ErrMalformedPayload), nil, false, true, false, logrus.ErrorLevel},
		{"permanent", Permanent(errors.New("template 1 not found")), nil, false, true, false, logrus.ErrorLevel},
		{"transient", errors.New("marketplace: 502"), nil, false, true, true, logrus.ErrorLevel},
		{"transient redelivered", errors.New("marketplace: 502"), int64(1), false, true, true, logrus.ErrorLevel},
		{"delivery limit", errors.New("marketplace: 502"), int64(2), false, true, false, logrus.ErrorLevel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			log, hook := nullLog()
			ack := &fakeAck{}
			headers := amqp.Table{HeaderRequestID: "rid-1"}
			if tc.delivery != nil {
				headers[headerDeliveryCount] = tc.delivery
			}
			d := amqp.Delivery{
				Acknowledger: ack,
				DeliveryTag:  1,
				Headers:      headers,
				Body:         []byte(`{}`),
			}
			handle(context.Background(), log, d, func(context.Context, []byte) error { return tc.err }, policy)

			assert.Equal(t, tc.wantAck, ack.acked)
			assert.Equal(t, tc.wantNack, ack.nacked)
			assert.Equal(t, tc.wantRequeue, ack.requeued)
			if tc.err != nil {
				require.NotNil(t, hook.LastEntry())
				assert.Equal(t, tc.wantLevel, hook.LastEntry().Level)
				assert.Equal(t, "rid-1", hook.LastEntry().Data["request_id"])
			}
		})
	}
}

func TestHandleWaitsBeforeRequeue(t *testing.T) {
	log, _ := nullLog()
	ack := &fakeAck{}
	d := amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(`{}`)}

	start := time.Now()
	handle(context.Background(), log, d, func(context.Context, []byte) error { return errors.New("boom") },
		RetryPolicy{MaxDeliveries: 5, Delay: 30 * time.Millisecond})
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.True(t, ack.requeued)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start = time.Now()
	handle(ctx, log, d, func(context.Context, []byte) error { return errors.New("boom") },
		RetryPolicy{MaxDeliveries: 5, Delay: time.Hour})
	assert.Less(t, time.Since(start), time.Second)
}

func TestDecode(t *testing.T) {
	v, err := Decode[jobs.ProcessSupply]([]byte(`{"assembly_task_id":5}`))
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.AssemblyTaskID)

	_, err = Decode[jobs.ProcessSupply]([]byte(`{`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
