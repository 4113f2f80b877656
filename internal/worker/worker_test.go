package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdocs/internal/queue"
)

func TestRetryPolicy_Normalize(t *testing.T) {
	t.Parallel()

	t.Run("zero values get defaults", func(t *testing.T) {
		t.Parallel()

		p := RetryPolicy{}.normalize()
		assert.Equal(t, 3, p.MaxAttempts)
		assert.Equal(t, 5*time.Second, p.Backoff)
	})

	t.Run("explicit values survive", func(t *testing.T) {
		t.Parallel()

		p := RetryPolicy{MaxAttempts: 7, Backoff: time.Second}.normalize()
		assert.Equal(t, 7, p.MaxAttempts)
		assert.Equal(t, time.Second, p.Backoff)
	})

	t.Run("negative values get defaults", func(t *testing.T) {
		t.Parallel()

		p := RetryPolicy{MaxAttempts: -1, Backoff: -time.Second}.normalize()
		assert.Equal(t, 3, p.MaxAttempts)
		assert.Equal(t, 5*time.Second, p.Backoff)
	})
}

type fakeAcknowledger struct {
	mu       sync.Mutex
	acks     int
	nacks    int
	requeued bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeued = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakeRepublisher struct {
	mu     sync.Mutex
	err    error
	queues []string
	envs   []queue.Envelope
}

func (f *fakeRepublisher) Republish(ctx context.Context, queueName string, env queue.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.queues = append(f.queues, queueName)
	f.envs = append(f.envs, env)
	return nil
}

func newTestConsumer(pub republisher, policy RetryPolicy, handle handler, exhausted exhaustedFunc) *consumer {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &consumer{
		publisher: pub,
		queueName: "test.jobs",
		policy:    policy.normalize(),
		handle:    handle,
		exhausted: exhausted,
		log:       logrus.NewEntry(log),
	}
}

func jobDelivery(t *testing.T, ack amqp.Acknowledger, attempt int) amqp.Delivery {
	t.Helper()

	body, err := json.Marshal(queue.Envelope{
		JobID:   "job-1",
		Attempt: attempt,
		Payload: []byte(`{"document_id":7}`),
	})
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body}
}

func TestConsumer_Process(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}

	t.Run("success acks without retry", func(t *testing.T) {
		t.Parallel()

		pub := &fakeRepublisher{}
		exhaustedCalls := 0
		c := newTestConsumer(pub, policy, func(ctx context.Context, env queue.Envelope) error {
			return nil
		}, func(env queue.Envelope, lastErr error) {
			exhaustedCalls++
		})

		ack := &fakeAcknowledger{}
		c.process(context.Background(), jobDelivery(t, ack, 1))
		c.wg.Wait()

		assert.Equal(t, 1, ack.acks)
		assert.Empty(t, pub.envs)
		assert.Equal(t, 0, exhaustedCalls)
	})

	t.Run("failure republishes with bumped attempt, then acks", func(t *testing.T) {
		t.Parallel()

		pub := &fakeRepublisher{}
		exhaustedCalls := 0
		c := newTestConsumer(pub, policy, func(ctx context.Context, env queue.Envelope) error {
			return errors.New("upsert failed")
		}, func(env queue.Envelope, lastErr error) {
			exhaustedCalls++
		})

		ack := &fakeAcknowledger{}
		c.process(context.Background(), jobDelivery(t, ack, 1))
		c.wg.Wait()

		require.Len(t, pub.envs, 1)
		assert.Equal(t, 2, pub.envs[0].Attempt)
		assert.Equal(t, "job-1", pub.envs[0].JobID)
		assert.Equal(t, []string{"test.jobs"}, pub.queues)
		assert.Equal(t, 1, ack.acks)
		assert.Equal(t, 0, exhaustedCalls)
	})

	t.Run("retries until exhausted fires once with the last error", func(t *testing.T) {
		t.Parallel()

		pub := &fakeRepublisher{}
		handlerCalls := 0
		exhaustedCalls := 0
		var lastErr error
		c := newTestConsumer(pub, policy, func(ctx context.Context, env queue.Envelope) error {
			handlerCalls++
			return fmt.Errorf("upsert failed on attempt %d", env.Attempt)
		}, func(env queue.Envelope, err error) {
			exhaustedCalls++
			lastErr = err
		})

		ack := &fakeAcknowledger{}
		env := queue.Envelope{JobID: "job-1", Attempt: 1, Payload: []byte(`{}`)}
		for i := 0; i < policy.MaxAttempts; i++ {
			body, err := json.Marshal(env)
			require.NoError(t, err)
			c.process(context.Background(), amqp.Delivery{Acknowledger: ack, Body: body})
			c.wg.Wait()

			if exhaustedCalls > 0 {
				break
			}
			require.NotEmpty(t, pub.envs)
			env = pub.envs[len(pub.envs)-1]
		}

		assert.Equal(t, 3, handlerCalls)
		assert.Equal(t, 1, exhaustedCalls)
		require.Error(t, lastErr)
		assert.Contains(t, lastErr.Error(), "attempt 3")
		require.Len(t, pub.envs, 2)
		assert.Equal(t, 2, pub.envs[0].Attempt)
		assert.Equal(t, 3, pub.envs[1].Attempt)
		assert.Equal(t, 3, ack.acks)
	})

	t.Run("republish failure escalates to exhausted", func(t *testing.T) {
		t.Parallel()

		handlerErr := errors.New("upsert failed")
		pub := &fakeRepublisher{err: errors.New("broker gone")}
		exhaustedCalls := 0
		var lastErr error
		c := newTestConsumer(pub, policy, func(ctx context.Context, env queue.Envelope) error {
			return handlerErr
		}, func(env queue.Envelope, err error) {
			exhaustedCalls++
			lastErr = err
		})

		ack := &fakeAcknowledger{}
		c.process(context.Background(), jobDelivery(t, ack, 1))
		c.wg.Wait()

		assert.Equal(t, 1, exhaustedCalls)
		assert.ErrorIs(t, lastErr, handlerErr)
		assert.Equal(t, 1, ack.acks)
	})

	t.Run("shutdown during backoff nacks the delivery back", func(t *testing.T) {
		t.Parallel()

		pub := &fakeRepublisher{}
		c := newTestConsumer(pub, RetryPolicy{MaxAttempts: 3, Backoff: time.Hour}, func(ctx context.Context, env queue.Envelope) error {
			return errors.New("upsert failed")
		}, nil)

		ctx, cancel := context.WithCancel(context.Background())
		ack := &fakeAcknowledger{}
		c.process(ctx, jobDelivery(t, ack, 1))
		cancel()
		c.wg.Wait()

		assert.Equal(t, 0, ack.acks)
		assert.Equal(t, 1, ack.nacks)
		assert.True(t, ack.requeued)
		assert.Empty(t, pub.envs)
	})

	t.Run("malformed envelope is dropped", func(t *testing.T) {
		t.Parallel()

		handlerCalls := 0
		c := newTestConsumer(&fakeRepublisher{}, policy, func(ctx context.Context, env queue.Envelope) error {
			handlerCalls++
			return nil
		}, nil)

		ack := &fakeAcknowledger{}
		c.process(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("not json")})
		c.wg.Wait()

		assert.Equal(t, 0, handlerCalls)
		assert.Equal(t, 1, ack.nacks)
		assert.False(t, ack.requeued)
	})
}
