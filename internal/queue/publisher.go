package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher enqueues background jobs on durable rabbitmq queues.
type Publisher struct {
	conn              *amqp.Connection
	ingestQueue       string
	vectorDeleteQueue string
}

func NewPublisher(conn *amqp.Connection, ingestQueue, vectorDeleteQueue string) *Publisher {
	return &Publisher{
		conn:              conn,
		ingestQueue:       ingestQueue,
		vectorDeleteQueue: vectorDeleteQueue,
	}
}

// PublishIngest enqueues an ingestion job and returns its job id.
func (p *Publisher) PublishIngest(ctx context.Context, job IngestJob) (string, error) {
	jobID := uuid.NewString()
	if err := p.publish(ctx, p.ingestQueue, jobID, 1, job); err != nil {
		return "", err
	}
	return jobID, nil
}

// PublishVectorDelete enqueues a vector deletion job and returns its job id.
func (p *Publisher) PublishVectorDelete(ctx context.Context, job VectorDeleteJob) (string, error) {
	jobID := uuid.NewString()
	if err := p.publish(ctx, p.vectorDeleteQueue, jobID, 1, job); err != nil {
		return "", err
	}
	return jobID, nil
}

// Republish re-enqueues an existing envelope with a bumped attempt counter.
// Used by workers to retry failed jobs after backoff.
func (p *Publisher) Republish(ctx context.Context, queueName string, env Envelope) error {
	return p.send(ctx, queueName, env)
}

func (p *Publisher) publish(ctx context.Context, queueName, jobID string, attempt int, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job payload failed: %w", err)
	}
	return p.send(ctx, queueName, Envelope{
		JobID:   jobID,
		Attempt: attempt,
		Payload: body,
	})
}

func (p *Publisher) send(ctx context.Context, queueName string, env Envelope) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal job envelope failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish job failed: %w", err)
	}
	return nil
}
