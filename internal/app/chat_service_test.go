package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdocs/internal/ai"
	"askdocs/internal/model"
	"askdocs/internal/vectorstore"
)

type fakeSessionStore struct {
	sessions map[uint]*model.ChatSession
	touched  []uint
}

func (f *fakeSessionStore) Create(session *model.ChatSession) error { return nil }
func (f *fakeSessionStore) ListByUserID(userID uint) ([]model.ChatSession, error) {
	return nil, nil
}
func (f *fakeSessionStore) GetByIDAndUserID(id, userID uint) (*model.ChatSession, error) {
	s, ok := f.sessions[id]
	if !ok || s.UserID != userID {
		return nil, nil
	}
	return s, nil
}
func (f *fakeSessionStore) Rename(id, userID uint, title string) error { return nil }
func (f *fakeSessionStore) Touch(id uint) error {
	f.touched = append(f.touched, id)
	return nil
}
func (f *fakeSessionStore) DeleteByIDAndUserID(id, userID uint) error { return nil }

type fakeMessageStore struct {
	created []model.ChatMessage
	history []model.ChatMessage
}

func (f *fakeMessageStore) Create(message *model.ChatMessage) error {
	f.created = append(f.created, *message)
	return nil
}
func (f *fakeMessageStore) ListBySessionID(sessionID uint, limit int) ([]model.ChatMessage, error) {
	return f.history, nil
}
func (f *fakeMessageStore) ListRecentBySessionID(sessionID uint, limit int) ([]model.ChatMessage, error) {
	return f.history, nil
}

type fakeLinkStore struct {
	docIDs []uint
}

func (f *fakeLinkStore) Attach(sessionID, documentID uint) error { return nil }
func (f *fakeLinkStore) Detach(sessionID, documentID uint) error { return nil }
func (f *fakeLinkStore) ListDocumentIDsBySession(sessionID uint) ([]uint, error) {
	return f.docIDs, nil
}
func (f *fakeLinkStore) DeleteBySessionID(sessionID uint) error { return nil }

type fakeDocReader struct {
	docs map[uint]*model.Document
}

func (f *fakeDocReader) GetByIDAndUserID(id, userID uint) (*model.Document, error) {
	doc, ok := f.docs[id]
	if !ok || doc.UserID != userID {
		return nil, nil
	}
	return doc, nil
}
func (f *fakeDocReader) GetByID(id uint) (*model.Document, error) {
	return f.docs[id], nil
}

type noopHistoryCache struct{}

func (noopHistoryCache) GetHistory(ctx context.Context, sessionID uint) ([]model.ChatMessage, bool, error) {
	return nil, false, nil
}
func (noopHistoryCache) SetHistory(ctx context.Context, sessionID uint, messages []model.ChatMessage) error {
	return nil
}
func (noopHistoryCache) DeleteHistory(ctx context.Context, sessionID uint) error { return nil }
func (noopHistoryCache) MarkDirty(ctx context.Context, sessionID uint) error     { return nil }
func (noopHistoryCache) IsDirty(ctx context.Context, sessionID uint) (bool, error) {
	return false, nil
}

type fakeLLM struct {
	completions []string
	calls       [][]ai.ChatMessage
	streamText  string
	streamErr   error
	chunkSize   int
}

func (f *fakeLLM) Complete(ctx context.Context, messages []ai.ChatMessage) (string, error) {
	f.calls = append(f.calls, messages)
	if len(f.completions) == 0 {
		return "", errors.New("no completion queued")
	}
	out := f.completions[0]
	f.completions = f.completions[1:]
	return out, nil
}

func (f *fakeLLM) StreamComplete(ctx context.Context, messages []ai.ChatMessage, onChunk func(chunk string) error) (string, error) {
	f.calls = append(f.calls, messages)
	size := f.chunkSize
	if size <= 0 {
		size = 4
	}
	var sent string
	for i := 0; i < len(f.streamText); i += size {
		end := i + size
		if end > len(f.streamText) {
			end = len(f.streamText)
		}
		if err := onChunk(f.streamText[i:end]); err != nil {
			return "", err
		}
		sent += f.streamText[i:end]
	}
	if f.streamErr != nil {
		return "", f.streamErr
	}
	return sent, nil
}

type fakeSearcher struct {
	matches        []vectorstore.Match
	err            error
	gotCollection  string
	gotLimit       int
	gotSources     []string
	searchCount    int
}

func (f *fakeSearcher) Search(ctx context.Context, collection string, vector []float32, limit int, sources []string) ([]vectorstore.Match, error) {
	f.searchCount++
	f.gotCollection = collection
	f.gotLimit = limit
	f.gotSources = sources
	return f.matches, f.err
}

type fakeEmbedder struct {
	embedded []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.embedded = append(f.embedded, text)
	return []float32{0.1, 0.2}, nil
}

type chatFixture struct {
	service  *ChatService
	sessions *fakeSessionStore
	messages *fakeMessageStore
	links    *fakeLinkStore
	llm      *fakeLLM
	embedder *fakeEmbedder
	searcher *fakeSearcher
}

func newChatFixture() *chatFixture {
	sessions := &fakeSessionStore{sessions: map[uint]*model.ChatSession{
		10: {ID: 10, UserID: 1, Name: "research"},
	}}
	messages := &fakeMessageStore{}
	links := &fakeLinkStore{docIDs: []uint{100}}
	docs := &fakeDocReader{docs: map[uint]*model.Document{
		100: {ID: 100, UserID: 1, Filename: "paper.pdf", Status: model.StatusCompleted},
	}}
	llm := &fakeLLM{}
	embedder := &fakeEmbedder{}
	searcher := &fakeSearcher{matches: []vectorstore.Match{
		{Score: 0.9, Payload: vectorstore.Payload{Source: "paper.pdf", Page: 2, Category: "text", Text: "relevant passage"}},
	}}

	service := NewChatService(sessions, messages, links, docs, noopHistoryCache{}, llm, embedder, searcher, ChatOptions{
		TopK:            4,
		MaxHistoryTurns: 5,
		SystemPrompt:    "Answer from the context.",
		RetrieverPrompt: "Rewrite the question to stand alone.",
	})
	return &chatFixture{
		service:  service,
		sessions: sessions,
		messages: messages,
		links:    links,
		llm:      llm,
		embedder: embedder,
		searcher: searcher,
	}
}

func TestChatService_Ask(t *testing.T) {
	t.Parallel()

	t.Run("answers and persists the exchange", func(t *testing.T) {
		t.Parallel()

		f := newChatFixture()
		f.llm.completions = []string{"The paper says X."}

		answer, err := f.service.Ask(context.Background(), 1, 10, "What does the paper say?")
		require.NoError(t, err)
		assert.Equal(t, "The paper says X.", answer.Response)
		require.Len(t, answer.Sources, 1)
		assert.Equal(t, "paper.pdf", answer.Sources[0].Source)
		assert.Equal(t, 2, answer.Sources[0].Page)

		require.Len(t, f.messages.created, 1)
		assert.Equal(t, "What does the paper say?", f.messages.created[0].Query)
		assert.Equal(t, "The paper says X.", f.messages.created[0].Response)
		assert.Equal(t, []uint{10}, f.sessions.touched)
	})

	t.Run("search is scoped to the user collection and session filenames", func(t *testing.T) {
		t.Parallel()

		f := newChatFixture()
		f.llm.completions = []string{"answer"}

		_, err := f.service.Ask(context.Background(), 1, 10, "question")
		require.NoError(t, err)

		assert.Equal(t, "user_1", f.searcher.gotCollection)
		assert.Equal(t, 4, f.searcher.gotLimit)
		assert.Equal(t, []string{"paper.pdf"}, f.searcher.gotSources)
	})

	t.Run("no attached documents fails before any model call", func(t *testing.T) {
		t.Parallel()

		f := newChatFixture()
		f.links.docIDs = nil

		_, err := f.service.Ask(context.Background(), 1, 10, "question")
		assert.ErrorIs(t, err, ErrNoDocuments)
		assert.Empty(t, f.llm.calls)
		assert.Empty(t, f.embedder.embedded)
		assert.Zero(t, f.searcher.searchCount)
		assert.Empty(t, f.messages.created)
	})

	t.Run("first turn skips the rewrite call", func(t *testing.T) {
		t.Parallel()

		f := newChatFixture()
		f.llm.completions = []string{"answer"}

		_, err := f.service.Ask(context.Background(), 1, 10, "standalone question")
		require.NoError(t, err)

		// only the answering completion ran
		require.Len(t, f.llm.calls, 1)
		assert.Equal(t, []string{"standalone question"}, f.embedder.embedded)
	})

	t.Run("follow-up turn rewrites the query before searching", func(t *testing.T) {
		t.Parallel()

		f := newChatFixture()
		f.messages.history = []model.ChatMessage{
			{SessionID: 10, Query: "What is the paper about?", Response: "Goroutine scheduling."},
		}
		f.llm.completions = []string{"How does goroutine scheduling work?", "final answer"}

		_, err := f.service.Ask(context.Background(), 1, 10, "How does it work?")
		require.NoError(t, err)

		require.Len(t, f.llm.calls, 2)
		assert.Equal(t, ai.RoleSystem, f.llm.calls[0][0].Role)
		assert.Equal(t, "Rewrite the question to stand alone.", f.llm.calls[0][0].Content)
		assert.Equal(t, []string{"How does goroutine scheduling work?"}, f.embedder.embedded)

		// the answering prompt still carries the user's original wording
		final := f.llm.calls[1]
		assert.Equal(t, "How does it work?", final[len(final)-1].Content)
		assert.Contains(t, final[0].Content, "relevant passage")
	})

	t.Run("empty rewrite falls back to the original query", func(t *testing.T) {
		t.Parallel()

		f := newChatFixture()
		f.messages.history = []model.ChatMessage{
			{SessionID: 10, Query: "q", Response: "a"},
		}
		f.llm.completions = []string{"  ", "answer"}

		_, err := f.service.Ask(context.Background(), 1, 10, "original question")
		require.NoError(t, err)
		assert.Equal(t, []string{"original question"}, f.embedder.embedded)
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()

		f := newChatFixture()
		_, err := f.service.Ask(context.Background(), 1, 99, "question")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("foreign session is not found", func(t *testing.T) {
		t.Parallel()

		f := newChatFixture()
		_, err := f.service.Ask(context.Background(), 2, 10, "question")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("blank query", func(t *testing.T) {
		t.Parallel()

		f := newChatFixture()
		_, err := f.service.Ask(context.Background(), 1, 10, "   ")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestChatService_StreamAsk(t *testing.T) {
	t.Parallel()

	t.Run("streams chunks then persists the full response", func(t *testing.T) {
		t.Parallel()

		f := newChatFixture()
		f.llm.streamText = "streamed answer"

		var got string
		answer, err := f.service.StreamAsk(context.Background(), 1, 10, "question", func(chunk string) error {
			got += chunk
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "streamed answer", got)
		assert.Equal(t, "streamed answer", answer.Response)

		require.Len(t, f.messages.created, 1)
		assert.Equal(t, "streamed answer", f.messages.created[0].Response)
	})

	t.Run("interrupted stream persists nothing", func(t *testing.T) {
		t.Parallel()

		f := newChatFixture()
		f.llm.streamText = "partial"
		f.llm.streamErr = errors.New("connection reset")

		_, err := f.service.StreamAsk(context.Background(), 1, 10, "question", func(chunk string) error {
			return nil
		})
		assert.Error(t, err)
		assert.Empty(t, f.messages.created)
		assert.Empty(t, f.sessions.touched)
	})

	t.Run("consumer abort persists nothing", func(t *testing.T) {
		t.Parallel()

		f := newChatFixture()
		f.llm.streamText = "some longer answer"

		abort := errors.New("client went away")
		_, err := f.service.StreamAsk(context.Background(), 1, 10, "question", func(chunk string) error {
			return abort
		})
		assert.Error(t, err)
		assert.Empty(t, f.messages.created)
	})
}

func TestChatService_GetHistory(t *testing.T) {
	t.Parallel()

	f := newChatFixture()
	f.messages.history = []model.ChatMessage{
		{SessionID: 10, Query: "q1", Response: "a1"},
		{SessionID: 10, Query: "q2", Response: "a2"},
	}

	history, err := f.service.GetHistory(context.Background(), 1, 10, 100)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "q1", history[0].Query)

	_, err = f.service.GetHistory(context.Background(), 1, 99, 100)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
