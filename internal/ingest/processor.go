package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"askdocs/internal/chunker"
	"askdocs/internal/loader"
	"askdocs/internal/model"
	"askdocs/internal/vectorstore"
)

// ErrNoExtractableContent marks a document that produced zero chunks. A
// document without vectors can never be retrieved, so this is terminal.
var ErrNoExtractableContent = errors.New("document has no extractable content")

// Loader produces text units from a file on disk.
type Loader interface {
	Load(path string) ([]loader.Unit, error)
}

// Embedder computes dense embeddings, one per input text.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentUpdater applies partial field updates to a document record.
type DocumentUpdater interface {
	UpdateFields(id uint, fields map[string]any) error
}

// Processor runs the ingestion pipeline for one document: load, chunk,
// embed, index, then mark the record. It owns every status transition out
// of processing; workers only decide whether to retry.
type Processor struct {
	docs       DocumentUpdater
	loader     Loader
	splitter   *chunker.Splitter
	embedder   Embedder
	index      vectorstore.Index
	embedBatch int
	log        *logrus.Entry
}

func NewProcessor(
	docs DocumentUpdater,
	ld Loader,
	splitter *chunker.Splitter,
	embedder Embedder,
	index vectorstore.Index,
	embedBatch int,
) *Processor {
	if embedBatch <= 0 {
		embedBatch = 10
	}
	return &Processor{
		docs:       docs,
		loader:     ld,
		splitter:   splitter,
		embedder:   embedder,
		index:      index,
		embedBatch: embedBatch,
		log:        logrus.WithField("component", "ingest"),
	}
}

// CollectionName returns the vector collection for a user. All of a user's
// documents share one collection; retrieval scopes by payload source.
func CollectionName(userID uint) string {
	return fmt.Sprintf("user_%d", userID)
}

// Process executes one ingestion attempt. A returned error leaves the
// document in processing; the caller retries or calls Fail.
func (p *Processor) Process(ctx context.Context, filePath string, userID, documentID uint) error {
	log := p.log.WithFields(logrus.Fields{
		"file":        filePath,
		"user_id":     userID,
		"document_id": documentID,
	})
	log.Info("processing document")

	units, err := p.loader.Load(filePath)
	if err != nil {
		return fmt.Errorf("load document failed: %w", err)
	}

	chunks := p.splitter.Split(units)
	if len(chunks) == 0 {
		return ErrNoExtractableContent
	}

	records, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return err
	}

	collection := CollectionName(userID)
	if err := p.index.EnsureCollection(ctx, collection); err != nil {
		return err
	}
	if err := p.index.Upsert(ctx, collection, records); err != nil {
		return err
	}

	if err := p.docs.UpdateFields(documentID, map[string]any{
		"status":        model.StatusCompleted,
		"error_message": "",
	}); err != nil {
		return fmt.Errorf("mark document completed failed: %w", err)
	}

	log.WithField("chunks", len(chunks)).Info("document indexed")
	return nil
}

// Fail records a terminal ingestion failure on the document. The job id is
// left in place as a pointer to the failing job.
func (p *Processor) Fail(documentID uint, cause error) {
	msg := "ingestion failed"
	if cause != nil {
		msg = cause.Error()
	}
	if err := p.docs.UpdateFields(documentID, map[string]any{
		"status":        model.StatusFailed,
		"error_message": msg,
	}); err != nil {
		p.log.WithError(err).WithField("document_id", documentID).Error("mark document failed errored")
	}
}

// DeleteVectors drops all vectors of one source file from a collection.
func (p *Processor) DeleteVectors(ctx context.Context, collection, source string) error {
	return p.index.DeleteBySource(ctx, collection, source)
}

func (p *Processor) embedChunks(ctx context.Context, chunks []chunker.Chunk) ([]vectorstore.Record, error) {
	records := make([]vectorstore.Record, 0, len(chunks))

	for start := 0; start < len(chunks); start += p.embedBatch {
		end := start + p.embedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunk batch failed: %w", err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(batch), len(vectors))
		}

		for i, c := range batch {
			records = append(records, vectorstore.Record{
				ID:     uuid.NewString(),
				Vector: vectors[i],
				Payload: vectorstore.Payload{
					Source:     c.Metadata.Source,
					Text:       c.Text,
					Page:       c.Metadata.Page,
					Category:   c.Metadata.Category,
					FileType:   c.Metadata.FileType,
					ImageIndex: c.Metadata.ImageIndex,
				},
			})
		}
	}
	return records, nil
}
