package queue

// IngestJob asks a worker to run the ingestion pipeline for one document.
// The document record already exists with status=processing, so replays
// only ever update it.
type IngestJob struct {
	DocumentID uint   `json:"document_id"`
	UserID     uint   `json:"user_id"`
	FilePath   string `json:"file_path"`
}

// VectorDeleteJob asks a worker to drop every vector of one source file
// from a collection, reclaiming space after a document record is deleted.
type VectorDeleteJob struct {
	Collection string `json:"collection"`
	Source     string `json:"source"`
}

// Envelope wraps a job payload with its identity and delivery attempt.
// Attempt starts at 1 and is bumped on each retry republish.
type Envelope struct {
	JobID   string `json:"job_id"`
	Attempt int    `json:"attempt"`
	Payload []byte `json:"payload"`
}
