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

// IngestWorker consumes ingestion jobs and runs the pipeline. Retries
// re-execute load+chunk+upsert from scratch; replays are safe because the
// document record already exists and points get fresh ids. Exhausted jobs
// mark the document failed with the last attempt's error.
type IngestWorker struct {
	consumer consumer
}

func NewIngestWorker(
	conn *amqp.Connection,
	publisher *queue.Publisher,
	processor *ingest.Processor,
	queueName string,
	policy RetryPolicy,
) *IngestWorker {
	w := &IngestWorker{}
	w.consumer = consumer{
		conn:      conn,
		publisher: publisher,
		queueName: queueName,
		policy:    policy.normalize(),
		log:       logrus.WithField("worker", "ingest"),
		handle: func(ctx context.Context, env queue.Envelope) error {
			var job queue.IngestJob
			if err := json.Unmarshal(env.Payload, &job); err != nil {
				return fmt.Errorf("decode ingest job failed: %w", err)
			}
			return processor.Process(ctx, job.FilePath, job.UserID, job.DocumentID)
		},
		exhausted: func(env queue.Envelope, lastErr error) {
			var job queue.IngestJob
			if err := json.Unmarshal(env.Payload, &job); err != nil {
				logrus.WithError(err).Error("decode exhausted ingest job failed")
				return
			}
			processor.Fail(job.DocumentID, lastErr)
		},
	}
	return w
}

func (w *IngestWorker) Start(ctx context.Context) error {
	return w.consumer.start(ctx)
}

func (w *IngestWorker) Close() {
	w.consumer.close()
}
