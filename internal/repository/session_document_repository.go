package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"askdocs/internal/model"
)

type SessionDocumentRepository struct {
	db *gorm.DB
}

func NewSessionDocumentRepository(db *gorm.DB) *SessionDocumentRepository {
	return &SessionDocumentRepository{db: db}
}

// Attach links a document into a session. Re-attaching the same pair is a
// no-op rather than an error.
func (r *SessionDocumentRepository) Attach(sessionID, documentID uint) error {
	link := model.SessionDocument{SessionID: sessionID, DocumentID: documentID}
	if err := r.db.Create(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return fmt.Errorf("attach document to session failed: %w", err)
	}
	return nil
}

func (r *SessionDocumentRepository) Detach(sessionID, documentID uint) error {
	if err := r.db.Where("session_id = ? AND document_id = ?", sessionID, documentID).
		Delete(&model.SessionDocument{}).Error; err != nil {
		return fmt.Errorf("detach document from session failed: %w", err)
	}
	return nil
}

func (r *SessionDocumentRepository) ListDocumentIDsBySession(sessionID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.Model(&model.SessionDocument{}).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Pluck("document_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list session document ids failed: %w", err)
	}
	return ids, nil
}

func (r *SessionDocumentRepository) DeleteBySessionID(sessionID uint) error {
	if err := r.db.Where("session_id = ?", sessionID).Delete(&model.SessionDocument{}).Error; err != nil {
		return fmt.Errorf("delete session document links failed: %w", err)
	}
	return nil
}

func (r *SessionDocumentRepository) DeleteByDocumentID(documentID uint) error {
	if err := r.db.Where("document_id = ?", documentID).Delete(&model.SessionDocument{}).Error; err != nil {
		return fmt.Errorf("delete document links failed: %w", err)
	}
	return nil
}
