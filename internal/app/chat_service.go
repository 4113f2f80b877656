package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"askdocs/internal/ai"
	"askdocs/internal/ingest"
	"askdocs/internal/model"
	"askdocs/internal/vectorstore"
)

var ErrNoDocuments = errors.New("no documents attached to session")

// LLMClient is the completion surface the chat service needs.
type LLMClient interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
	StreamComplete(ctx context.Context, messages []ai.ChatMessage, onChunk func(chunk string) error) (string, error)
}

type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorSearcher interface {
	Search(ctx context.Context, collection string, vector []float32, limit int, sources []string) ([]vectorstore.Match, error)
}

type ChatMessageStore interface {
	Create(message *model.ChatMessage) error
	ListBySessionID(sessionID uint, limit int) ([]model.ChatMessage, error)
	ListRecentBySessionID(sessionID uint, limit int) ([]model.ChatMessage, error)
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID uint) ([]model.ChatMessage, bool, error)
	SetHistory(ctx context.Context, sessionID uint, messages []model.ChatMessage) error
	DeleteHistory(ctx context.Context, sessionID uint) error
	MarkDirty(ctx context.Context, sessionID uint) error
	IsDirty(ctx context.Context, sessionID uint) (bool, error)
}

// ChatOptions tunes retrieval and prompting.
type ChatOptions struct {
	TopK            int
	MaxHistoryTurns int
	SystemPrompt    string
	RetrieverPrompt string
}

// ChatService answers questions about the documents attached to a chat
// session. Each question is rewritten into a standalone query using the
// recent conversation, matched against the user's vector collection with a
// filename filter, and answered by the LLM grounded on the retrieved chunks.
type ChatService struct {
	sessions ChatSessionStore
	messages ChatMessageStore
	links    SessionLinkStore
	docs     DocumentReader
	history  HistoryCache
	llm      LLMClient
	embedder QueryEmbedder
	index    VectorSearcher
	opts     ChatOptions
	log      *logrus.Entry
}

func NewChatService(
	sessions ChatSessionStore,
	messages ChatMessageStore,
	links SessionLinkStore,
	docs DocumentReader,
	history HistoryCache,
	llm LLMClient,
	embedder QueryEmbedder,
	index VectorSearcher,
	opts ChatOptions,
) *ChatService {
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if opts.MaxHistoryTurns <= 0 {
		opts.MaxHistoryTurns = 5
	}
	return &ChatService{
		sessions: sessions,
		messages: messages,
		links:    links,
		docs:     docs,
		history:  history,
		llm:      llm,
		embedder: embedder,
		index:    index,
		opts:     opts,
		log:      logrus.WithField("component", "chat"),
	}
}

// SourceRef points an answer back at the chunk it was grounded on.
type SourceRef struct {
	Source   string  `json:"source"`
	Page     int     `json:"page"`
	Category string  `json:"category"`
	Score    float32 `json:"score"`
}

type Answer struct {
	Response string      `json:"response"`
	Sources  []SourceRef `json:"sources"`
}

// Ask answers a question in one shot and records the exchange.
func (s *ChatService) Ask(ctx context.Context, userID, sessionID uint, query string) (*Answer, error) {
	prep, err := s.prepare(ctx, userID, sessionID, query)
	if err != nil {
		return nil, err
	}

	response, err := s.llm.Complete(ctx, prep.prompt)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if err := s.appendMessage(ctx, sessionID, prep.query, response); err != nil {
		return nil, err
	}
	return &Answer{Response: response, Sources: prep.sources}, nil
}

// StreamAsk streams the answer chunk by chunk through onChunk. The exchange
// is persisted only after the stream completes; an interrupted stream leaves
// the session history untouched.
func (s *ChatService) StreamAsk(ctx context.Context, userID, sessionID uint, query string, onChunk func(chunk string) error) (*Answer, error) {
	prep, err := s.prepare(ctx, userID, sessionID, query)
	if err != nil {
		return nil, err
	}

	response, err := s.llm.StreamComplete(ctx, prep.prompt, onChunk)
	if err != nil {
		return nil, fmt.Errorf("chat stream failed: %w", err)
	}

	if err := s.appendMessage(ctx, sessionID, prep.query, response); err != nil {
		return nil, err
	}
	return &Answer{Response: response, Sources: prep.sources}, nil
}

// GetHistory returns the session's messages in chronological order, serving
// from the cache when it is present and clean.
func (s *ChatService) GetHistory(ctx context.Context, userID, sessionID uint, limit int) ([]model.ChatMessage, error) {
	if _, err := s.getSession(userID, sessionID); err != nil {
		return nil, err
	}

	dirty, err := s.history.IsDirty(ctx, sessionID)
	if err != nil {
		s.log.WithError(err).Warn("history dirty check failed")
		dirty = true
	}
	if !dirty {
		if cached, ok, err := s.history.GetHistory(ctx, sessionID); err == nil && ok {
			return cached, nil
		}
	}

	messages, err := s.messages.ListBySessionID(sessionID, limit)
	if err != nil {
		return nil, err
	}
	// While the dirty marker is live an append may still be in flight, so
	// only a clean read repopulates the cache.
	if !dirty {
		if err := s.history.SetHistory(ctx, sessionID, messages); err != nil {
			s.log.WithError(err).Warn("history cache refresh failed")
		}
	}
	return messages, nil
}

type preparedTurn struct {
	query   string
	prompt  []ai.ChatMessage
	sources []SourceRef
}

// prepare runs everything up to the final completion: ownership checks,
// source resolution, query rewriting, retrieval and prompt assembly.
func (s *ChatService) prepare(ctx context.Context, userID, sessionID uint, query string) (*preparedTurn, error) {
	query = strings.TrimSpace(query)
	if userID == 0 || sessionID == 0 || query == "" {
		return nil, ErrInvalidInput
	}
	if _, err := s.getSession(userID, sessionID); err != nil {
		return nil, err
	}

	sources, err := s.sessionSources(sessionID)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, ErrNoDocuments
	}

	history, err := s.recentHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	searchQuery, err := s.rewriteQuery(ctx, history, query)
	if err != nil {
		return nil, err
	}

	vector, err := s.embedder.Embed(ctx, searchQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}

	matches, err := s.index.Search(ctx, ingest.CollectionName(userID), vector, s.opts.TopK, sources)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	prompt := s.buildPrompt(history, matches, query)

	refs := make([]SourceRef, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, SourceRef{
			Source:   m.Payload.Source,
			Page:     m.Payload.Page,
			Category: m.Payload.Category,
			Score:    m.Score,
		})
	}

	return &preparedTurn{query: query, prompt: prompt, sources: refs}, nil
}

func (s *ChatService) getSession(userID, sessionID uint) (*model.ChatSession, error) {
	session, err := s.sessions.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// sessionSources resolves the session's attached documents into the
// filenames retrieval filters on. Documents removed since attachment are
// skipped.
func (s *ChatService) sessionSources(sessionID uint) ([]string, error) {
	ids, err := s.links.ListDocumentIDsBySession(sessionID)
	if err != nil {
		return nil, err
	}
	sources := make([]string, 0, len(ids))
	for _, id := range ids {
		doc, err := s.docs.GetByID(id)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		sources = append(sources, doc.Filename)
	}
	return sources, nil
}

func (s *ChatService) recentHistory(ctx context.Context, sessionID uint) ([]model.ChatMessage, error) {
	dirty, err := s.history.IsDirty(ctx, sessionID)
	if err != nil {
		dirty = true
	}
	if !dirty {
		if cached, ok, err := s.history.GetHistory(ctx, sessionID); err == nil && ok {
			return tail(cached, s.opts.MaxHistoryTurns), nil
		}
	}

	messages, err := s.messages.ListRecentBySessionID(sessionID, s.opts.MaxHistoryTurns)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// rewriteQuery turns a follow-up question into a standalone search query
// using the recent conversation. With no history the question already stands
// alone and no LLM call is made.
func (s *ChatService) rewriteQuery(ctx context.Context, history []model.ChatMessage, query string) (string, error) {
	if len(history) == 0 {
		return query, nil
	}

	messages := make([]ai.ChatMessage, 0, len(history)*2+2)
	messages = append(messages, ai.ChatMessage{Role: ai.RoleSystem, Content: s.opts.RetrieverPrompt})
	messages = append(messages, historyMessages(history)...)
	messages = append(messages, ai.ChatMessage{Role: ai.RoleUser, Content: query})

	rewritten, err := s.llm.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("query rewrite failed: %w", err)
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return query, nil
	}
	return rewritten, nil
}

func (s *ChatService) buildPrompt(history []model.ChatMessage, matches []vectorstore.Match, query string) []ai.ChatMessage {
	var contextBlock strings.Builder
	for i, m := range matches {
		if i > 0 {
			contextBlock.WriteString("\n\n")
		}
		contextBlock.WriteString(fmt.Sprintf("[%s, page %d]\n%s", m.Payload.Source, m.Payload.Page, m.Payload.Text))
	}

	system := s.opts.SystemPrompt
	if contextBlock.Len() > 0 {
		system = system + "\n\nContext:\n" + contextBlock.String()
	} else {
		system = system + "\n\nContext: no relevant passages were found in the attached documents."
	}

	messages := make([]ai.ChatMessage, 0, len(history)*2+2)
	messages = append(messages, ai.ChatMessage{Role: ai.RoleSystem, Content: system})
	messages = append(messages, historyMessages(history)...)
	messages = append(messages, ai.ChatMessage{Role: ai.RoleUser, Content: query})
	return messages
}

func (s *ChatService) appendMessage(ctx context.Context, sessionID uint, query, response string) error {
	message := &model.ChatMessage{
		SessionID: sessionID,
		Query:     query,
		Response:  response,
	}
	if err := s.messages.Create(message); err != nil {
		return fmt.Errorf("persist chat message failed: %w", err)
	}
	if err := s.sessions.Touch(sessionID); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("touch session failed")
	}
	if err := s.history.MarkDirty(ctx, sessionID); err != nil {
		s.log.WithError(err).Warn("mark history dirty failed")
	}
	if err := s.history.DeleteHistory(ctx, sessionID); err != nil {
		s.log.WithError(err).Warn("drop cached history failed")
	}
	return nil
}

func historyMessages(history []model.ChatMessage) []ai.ChatMessage {
	out := make([]ai.ChatMessage, 0, len(history)*2)
	for _, h := range history {
		out = append(out, ai.ChatMessage{Role: ai.RoleUser, Content: h.Query})
		out = append(out, ai.ChatMessage{Role: ai.RoleAssistant, Content: h.Response})
	}
	return out
}

func tail(messages []model.ChatMessage, n int) []model.ChatMessage {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
