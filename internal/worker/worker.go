package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"askdocs/internal/queue"
)

// RetryPolicy bounds job attempts. Backoff grows linearly with the attempt
// number: attempt n waits n*Backoff before the next try.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Backoff <= 0 {
		p.Backoff = 5 * time.Second
	}
	return p
}

// handler processes one job envelope. A returned error triggers a retry
// until attempts are exhausted, then exhausted is called once.
type handler func(ctx context.Context, env queue.Envelope) error

type exhaustedFunc func(env queue.Envelope, lastErr error)

// republisher re-enqueues a job envelope on a queue.
type republisher interface {
	Republish(ctx context.Context, queueName string, env queue.Envelope) error
}

// consumer is the shared consume loop: declare the queue, pull deliveries,
// run the handler, and republish with backoff on failure.
type consumer struct {
	conn      *amqp.Connection
	publisher republisher
	queueName string
	policy    RetryPolicy
	handle    handler
	exhausted exhaustedFunc
	log       *logrus.Entry

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (c *consumer) start(ctx context.Context) error {
	if c.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	ch, err := c.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		c.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				c.process(workerCtx, d)
			}
		}
	}()

	return nil
}

func (c *consumer) process(ctx context.Context, d amqp.Delivery) {
	var env queue.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		c.log.WithError(err).Error("decode job envelope failed")
		_ = d.Nack(false, false)
		return
	}

	log := c.log.WithFields(logrus.Fields{
		"job_id":  env.JobID,
		"attempt": env.Attempt,
	})

	err := c.handle(ctx, env)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	if env.Attempt >= c.policy.MaxAttempts {
		log.WithError(err).Error("job attempts exhausted")
		if c.exhausted != nil {
			c.exhausted(env, err)
		}
		_ = d.Ack(false)
		return
	}

	log.WithError(err).Warn("job failed, scheduling retry")
	c.scheduleRetry(ctx, d, env, err)
}

// scheduleRetry republishes the envelope after a linear backoff. The
// delivery stays unacked until the republish lands: shutdown mid-backoff
// nacks it back to the broker for redelivery, and a failed republish
// escalates to the exhausted callback so the job still reaches a terminal
// state.
func (c *consumer) scheduleRetry(ctx context.Context, d amqp.Delivery, env queue.Envelope, lastErr error) {
	delay := time.Duration(env.Attempt) * c.policy.Backoff
	env.Attempt++

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			_ = d.Nack(false, true)
			return
		case <-timer.C:
		}

		if err := c.publisher.Republish(ctx, c.queueName, env); err != nil {
			c.log.WithError(err).WithField("job_id", env.JobID).Error("republish job failed")
			if c.exhausted != nil {
				c.exhausted(env, lastErr)
			}
		}
		_ = d.Ack(false)
	}()
}

func (c *consumer) close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}
