package model

import "time"

// SessionDocument links a document into a chat session's retrieval scope.
// A (session, document) pair appears at most once.
type SessionDocument struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  uint      `gorm:"not null;uniqueIndex:idx_session_document" json:"session_id"`
	DocumentID uint      `gorm:"not null;uniqueIndex:idx_session_document" json:"document_id"`
	CreatedAt  time.Time `json:"created_at"`
}
