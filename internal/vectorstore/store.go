package vectorstore

import "context"

// Payload is the metadata stored alongside each vector. Source carries the
// original filename and is the field retrieval filters on.
type Payload struct {
	Source     string `json:"source"`
	Text       string `json:"text"`
	Page       int    `json:"page"`
	Category   string `json:"category"`
	FileType   string `json:"file_type"`
	ImageIndex int    `json:"image_index,omitempty"`
}

// Record is one embedded chunk ready for upsert.
type Record struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Match is one similarity-search hit, best first.
type Match struct {
	Score   float32
	Payload Payload
}

// Index is the vector collection abstraction. One collection holds all of a
// user's chunks; retrieval scopes results with a source-filename filter.
type Index interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, name string) error
	// Upsert writes records into the collection. Zero records is a no-op.
	Upsert(ctx context.Context, collection string, records []Record) error
	// Search returns the top-k matches; when sources is non-empty, results
	// are restricted to records whose payload source is in the set.
	Search(ctx context.Context, collection string, vector []float32, limit int, sources []string) ([]Match, error)
	// DeleteBySource removes every record whose payload source equals source.
	DeleteBySource(ctx context.Context, collection, source string) error
}
