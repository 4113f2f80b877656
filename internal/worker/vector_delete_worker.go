package worker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"askdocs/internal/ingest"
	"askdocs/internal/queue"
)

// VectorDeleteWorker consumes deletion jobs enqueued when a document record
// is removed. Deletion filters by exact source filename, so it cannot touch
// vectors of other in-flight uploads for the same user.
type VectorDeleteWorker struct {
	consumer consumer
}

func NewVectorDeleteWorker(
	conn *amqp.Connection,
	publisher *queue.Publisher,
	processor *ingest.Processor,
	queueName string,
	policy RetryPolicy,
) *VectorDeleteWorker {
	w := &VectorDeleteWorker{}
	w.consumer = consumer{
		conn:      conn,
		publisher: publisher,
		queueName: queueName,
		policy:    policy.normalize(),
		log:       logrus.WithField("worker", "vector_delete"),
		handle: func(ctx context.Context, env queue.Envelope) error {
			var job queue.VectorDeleteJob
			if err := json.Unmarshal(env.Payload, &job); err != nil {
				return fmt.Errorf("decode vector delete job failed: %w", err)
			}
			return processor.DeleteVectors(ctx, job.Collection, job.Source)
		},
		exhausted: func(env queue.Envelope, lastErr error) {
			// The document record is already gone; orphaned vectors are
			// logged for manual cleanup.
			logrus.WithError(lastErr).WithField("job_id", env.JobID).
				Error("vector delete abandoned after retries")
		},
	}
	return w
}

func (w *VectorDeleteWorker) Start(ctx context.Context) error {
	return w.consumer.start(ctx)
}

func (w *VectorDeleteWorker) Close() {
	w.consumer.close()
}
