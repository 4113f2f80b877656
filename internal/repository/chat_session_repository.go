package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"askdocs/internal/model"
)

type ChatSessionRepository struct {
	db *gorm.DB
}

func NewChatSessionRepository(db *gorm.DB) *ChatSessionRepository {
	return &ChatSessionRepository{db: db}
}

func (r *ChatSessionRepository) Create(session *model.ChatSession) error {
	if err := r.db.Create(session).Error; err != nil {
		return fmt.Errorf("create chat session failed: %w", err)
	}
	return nil
}

// ListByUserID orders by updated_at so the most recently active
// conversation comes first.
func (r *ChatSessionRepository) ListByUserID(userID uint) ([]model.ChatSession, error) {
	var list []model.ChatSession
	if err := r.db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list chat sessions failed: %w", err)
	}
	return list, nil
}

func (r *ChatSessionRepository) GetByIDAndUserID(id, userID uint) (*model.ChatSession, error) {
	var session model.ChatSession
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query chat session failed: %w", err)
	}
	return &session, nil
}

func (r *ChatSessionRepository) Rename(id, userID uint, name string) error {
	if err := r.db.Model(&model.ChatSession{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("name", name).Error; err != nil {
		return fmt.Errorf("rename chat session failed: %w", err)
	}
	return nil
}

// Touch bumps updated_at after message activity so session ordering
// follows the conversation.
func (r *ChatSessionRepository) Touch(id uint) error {
	if err := r.db.Model(&model.ChatSession{}).
		Where("id = ?", id).
		Update("updated_at", time.Now()).Error; err != nil {
		return fmt.Errorf("touch chat session failed: %w", err)
	}
	return nil
}

func (r *ChatSessionRepository) DeleteByIDAndUserID(id, userID uint) error {
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&model.ChatSession{}).Error; err != nil {
		return fmt.Errorf("delete chat session failed: %w", err)
	}
	return nil
}
