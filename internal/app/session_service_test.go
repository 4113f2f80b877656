package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdocs/internal/model"
)

type memSessionStore struct {
	nextID   uint
	sessions map[uint]*model.ChatSession
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{nextID: 1, sessions: make(map[uint]*model.ChatSession)}
}

func (m *memSessionStore) Create(session *model.ChatSession) error {
	session.ID = m.nextID
	m.nextID++
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *memSessionStore) ListByUserID(userID uint) ([]model.ChatSession, error) {
	var out []model.ChatSession
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSessionStore) GetByIDAndUserID(id, userID uint) (*model.ChatSession, error) {
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return nil, nil
	}
	return s, nil
}

func (m *memSessionStore) Rename(id, userID uint, title string) error {
	if s, ok := m.sessions[id]; ok && s.UserID == userID {
		s.Name = title
	}
	return nil
}

func (m *memSessionStore) Touch(id uint) error { return nil }

func (m *memSessionStore) DeleteByIDAndUserID(id, userID uint) error {
	if s, ok := m.sessions[id]; ok && s.UserID == userID {
		delete(m.sessions, id)
	}
	return nil
}

type memLinkStore struct {
	links map[uint][]uint // sessionID -> documentIDs
}

func newMemLinkStore() *memLinkStore {
	return &memLinkStore{links: make(map[uint][]uint)}
}

func (m *memLinkStore) Attach(sessionID, documentID uint) error {
	for _, id := range m.links[sessionID] {
		if id == documentID {
			return nil
		}
	}
	m.links[sessionID] = append(m.links[sessionID], documentID)
	return nil
}

func (m *memLinkStore) Detach(sessionID, documentID uint) error {
	ids := m.links[sessionID]
	for i, id := range ids {
		if id == documentID {
			m.links[sessionID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memLinkStore) ListDocumentIDsBySession(sessionID uint) ([]uint, error) {
	return m.links[sessionID], nil
}

func (m *memLinkStore) DeleteBySessionID(sessionID uint) error {
	delete(m.links, sessionID)
	return nil
}

type memMessageCleaner struct {
	cleaned []uint
}

func (m *memMessageCleaner) DeleteBySessionID(sessionID uint) error {
	m.cleaned = append(m.cleaned, sessionID)
	return nil
}

func newSessionFixture() (*SessionService, *memSessionStore, *memLinkStore, *fakeDocReader) {
	sessions := newMemSessionStore()
	links := newMemLinkStore()
	docs := &fakeDocReader{docs: map[uint]*model.Document{
		100: {ID: 100, UserID: 1, Filename: "paper.pdf"},
		200: {ID: 200, UserID: 2, Filename: "other.pdf"},
	}}
	svc := NewSessionService(sessions, links, &memMessageCleaner{}, docs, noopHistoryCache{})
	return svc, sessions, links, docs
}

func TestSessionService_CreateAndList(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newSessionFixture()

	session, err := svc.Create(1, "  research  ")
	require.NoError(t, err)
	assert.Equal(t, "research", session.Name)
	assert.NotZero(t, session.ID)

	_, err = svc.Create(1, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	sessions, err := svc.List(1)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestSessionService_Rename(t *testing.T) {
	t.Parallel()

	svc, store, _, _ := newSessionFixture()
	session, err := svc.Create(1, "before")
	require.NoError(t, err)

	require.NoError(t, svc.Rename(1, session.ID, "after"))
	assert.Equal(t, "after", store.sessions[session.ID].Name)

	assert.ErrorIs(t, svc.Rename(2, session.ID, "hijack"), ErrSessionNotFound)
}

func TestSessionService_Delete(t *testing.T) {
	t.Parallel()

	svc, store, links, _ := newSessionFixture()
	session, err := svc.Create(1, "doomed")
	require.NoError(t, err)
	require.NoError(t, svc.AttachDocument(1, session.ID, 100))

	require.NoError(t, svc.Delete(context.Background(), 1, session.ID))
	assert.Empty(t, store.sessions)
	assert.Empty(t, links.links)

	assert.ErrorIs(t, svc.Delete(context.Background(), 1, session.ID), ErrSessionNotFound)
}

func TestSessionService_AttachDocument(t *testing.T) {
	t.Parallel()

	t.Run("attaches and is idempotent", func(t *testing.T) {
		t.Parallel()

		svc, _, links, _ := newSessionFixture()
		session, err := svc.Create(1, "s")
		require.NoError(t, err)

		require.NoError(t, svc.AttachDocument(1, session.ID, 100))
		require.NoError(t, svc.AttachDocument(1, session.ID, 100))
		assert.Equal(t, []uint{100}, links.links[session.ID])
	})

	t.Run("foreign document is rejected", func(t *testing.T) {
		t.Parallel()

		svc, _, _, _ := newSessionFixture()
		session, err := svc.Create(1, "s")
		require.NoError(t, err)

		assert.ErrorIs(t, svc.AttachDocument(1, session.ID, 200), ErrDocumentNotFound)
	})

	t.Run("unknown document is rejected", func(t *testing.T) {
		t.Parallel()

		svc, _, _, _ := newSessionFixture()
		session, err := svc.Create(1, "s")
		require.NoError(t, err)

		assert.ErrorIs(t, svc.AttachDocument(1, session.ID, 999), ErrDocumentNotFound)
	})
}

func TestSessionService_ListDocuments(t *testing.T) {
	t.Parallel()

	svc, _, _, docs := newSessionFixture()
	session, err := svc.Create(1, "s")
	require.NoError(t, err)
	require.NoError(t, svc.AttachDocument(1, session.ID, 100))

	listed, err := svc.ListDocuments(1, session.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "paper.pdf", listed[0].Filename)

	// a document deleted after attachment is skipped, not an error
	delete(docs.docs, 100)
	listed, err = svc.ListDocuments(1, session.ID)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestSessionService_DetachDocument(t *testing.T) {
	t.Parallel()

	svc, _, links, _ := newSessionFixture()
	session, err := svc.Create(1, "s")
	require.NoError(t, err)
	require.NoError(t, svc.AttachDocument(1, session.ID, 100))

	require.NoError(t, svc.DetachDocument(1, session.ID, 100))
	assert.Empty(t, links.links[session.ID])
}
