package model

import "time"

// Document lifecycle states. The ingestion pipeline owns every transition
// out of StatusProcessing.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Document is an uploaded file whose chunks live in the user's vector
// collection. Filename is unique per user.
type Document struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;uniqueIndex:idx_user_filename" json:"user_id"`
	Filename         string    `gorm:"size:256;not null;uniqueIndex:idx_user_filename" json:"filename"`
	FilePath         string    `gorm:"size:512;not null" json:"file_path"`
	VectorCollection string    `gorm:"size:128;not null" json:"vector_collection"`
	Status           string    `gorm:"size:16;not null;index" json:"status"`
	JobID            string    `gorm:"size:64" json:"job_id,omitempty"`
	ErrorMessage     string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
