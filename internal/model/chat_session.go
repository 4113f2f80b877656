package model

import "time"

// ChatSession groups messages and attached documents for one user.
// UpdatedAt reflects the most recent message activity, not just edits,
// so session lists stay ordered by recency of conversation.
type ChatSession struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
