package app

import (
	"context"
	"errors"
	"strings"

	"askdocs/internal/model"
)

var ErrSessionNotFound = errors.New("chat session not found")

// ChatSessionStore is the session persistence surface shared by the session
// and chat services.
type ChatSessionStore interface {
	Create(session *model.ChatSession) error
	ListByUserID(userID uint) ([]model.ChatSession, error)
	GetByIDAndUserID(id, userID uint) (*model.ChatSession, error)
	Rename(id, userID uint, title string) error
	Touch(id uint) error
	DeleteByIDAndUserID(id, userID uint) error
}

type SessionLinkStore interface {
	Attach(sessionID, documentID uint) error
	Detach(sessionID, documentID uint) error
	ListDocumentIDsBySession(sessionID uint) ([]uint, error)
	DeleteBySessionID(sessionID uint) error
}

type SessionMessageCleaner interface {
	DeleteBySessionID(sessionID uint) error
}

type DocumentReader interface {
	GetByIDAndUserID(id, userID uint) (*model.Document, error)
	GetByID(id uint) (*model.Document, error)
}

// SessionService manages chat sessions and their document attachments.
type SessionService struct {
	sessions ChatSessionStore
	links    SessionLinkStore
	messages SessionMessageCleaner
	docs     DocumentReader
	history  HistoryCache
}

func NewSessionService(sessions ChatSessionStore, links SessionLinkStore, messages SessionMessageCleaner, docs DocumentReader, history HistoryCache) *SessionService {
	return &SessionService{
		sessions: sessions,
		links:    links,
		messages: messages,
		docs:     docs,
		history:  history,
	}
}

func (s *SessionService) Create(userID uint, title string) (*model.ChatSession, error) {
	title = strings.TrimSpace(title)
	if userID == 0 || title == "" {
		return nil, ErrInvalidInput
	}
	session := &model.ChatSession{UserID: userID, Name: title}
	if err := s.sessions.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) List(userID uint) ([]model.ChatSession, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sessions.ListByUserID(userID)
}

func (s *SessionService) Get(userID, sessionID uint) (*model.ChatSession, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidInput
	}
	session, err := s.sessions.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionService) Rename(userID, sessionID uint, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidInput
	}
	if _, err := s.Get(userID, sessionID); err != nil {
		return err
	}
	return s.sessions.Rename(sessionID, userID, title)
}

// Delete removes the session together with its messages, document links and
// cached history. Documents themselves are untouched.
func (s *SessionService) Delete(ctx context.Context, userID, sessionID uint) error {
	if _, err := s.Get(userID, sessionID); err != nil {
		return err
	}
	if err := s.messages.DeleteBySessionID(sessionID); err != nil {
		return err
	}
	if err := s.links.DeleteBySessionID(sessionID); err != nil {
		return err
	}
	if err := s.sessions.DeleteByIDAndUserID(sessionID, userID); err != nil {
		return err
	}
	_ = s.history.DeleteHistory(ctx, sessionID)
	return nil
}

// AttachDocument links a document to a session. Both must belong to the
// caller; attaching the same document twice is a no-op.
func (s *SessionService) AttachDocument(userID, sessionID, documentID uint) error {
	if _, err := s.Get(userID, sessionID); err != nil {
		return err
	}
	doc, err := s.docs.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}
	return s.links.Attach(sessionID, documentID)
}

func (s *SessionService) DetachDocument(userID, sessionID, documentID uint) error {
	if _, err := s.Get(userID, sessionID); err != nil {
		return err
	}
	return s.links.Detach(sessionID, documentID)
}

// ListDocuments returns the documents attached to a session in attachment
// order. Links whose document has since been removed are skipped.
func (s *SessionService) ListDocuments(userID, sessionID uint) ([]model.Document, error) {
	if _, err := s.Get(userID, sessionID); err != nil {
		return nil, err
	}
	ids, err := s.links.ListDocumentIDsBySession(sessionID)
	if err != nil {
		return nil, err
	}
	docs := make([]model.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.docs.GetByID(id)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}
