package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
)

// QdrantIndex implements Index on a Qdrant instance over gRPC. Collections
// use cosine distance with a fixed embedding dimensionality.
type QdrantIndex struct {
	client *qdrant.Client
	dim    uint64
	log    *logrus.Entry
}

type QdrantOptions struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
	Dim    int
}

func NewQdrantIndex(opts QdrantOptions) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		APIKey: opts.APIKey,
		UseTLS: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant failed: %w", err)
	}
	if opts.Dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", opts.Dim)
	}
	return &QdrantIndex{
		client: client,
		dim:    uint64(opts.Dim),
		log:    logrus.WithField("component", "vectorstore"),
	}, nil
}

func (q *QdrantIndex) EnsureCollection(ctx context.Context, name string) error {
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s failed: %w", name, err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.dim,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s failed: %w", name, err)
	}
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		q.log.WithField("collection", collection).Warn("upsert called with zero records, skipping")
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, rec := range records {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"source":      rec.Payload.Source,
				"text":        rec.Payload.Text,
				"page":        int64(rec.Payload.Page),
				"category":    rec.Payload.Category,
				"file_type":   rec.Payload.FileType,
				"image_index": int64(rec.Payload.ImageIndex),
			}),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upsert %d points into %s failed: %w", len(points), collection, err)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, collection string, vector []float32, limit int, sources []string) ([]Match, error) {
	if limit <= 0 {
		limit = 4
	}

	query := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(sources) > 0 {
		query.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeywords("source", sources...),
			},
		}
	}

	points, err := q.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search collection %s failed: %w", collection, err)
	}

	matches := make([]Match, 0, len(points))
	for _, p := range points {
		matches = append(matches, Match{
			Score:   p.GetScore(),
			Payload: payloadFromValues(p.GetPayload()),
		})
	}
	return matches, nil
}

func (q *QdrantIndex) DeleteBySource(ctx context.Context, collection, source string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("source", source),
			},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("delete points for source %s in %s failed: %w", source, collection, err)
	}
	return nil
}

func (q *QdrantIndex) HealthCheck(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

func payloadFromValues(values map[string]*qdrant.Value) Payload {
	return Payload{
		Source:     values["source"].GetStringValue(),
		Text:       values["text"].GetStringValue(),
		Page:       int(values["page"].GetIntegerValue()),
		Category:   values["category"].GetStringValue(),
		FileType:   values["file_type"].GetStringValue(),
		ImageIndex: int(values["image_index"].GetIntegerValue()),
	}
}
