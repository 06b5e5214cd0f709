package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role of a turn's author
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SourceRef is a document the backend used to ground an assistant turn
type SourceRef struct {
	SourceID  string  `json:"source_id"`
	Relevance float64 `json:"relevance"`
}

// Turn represents a single chat message. Sources is nil when the turn
// carries no source evidence.
type Turn struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	Sources   []SourceRef `json:"sources,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Options are the session defaults applied at startup
type Options struct {
	UseKnowledgeBase bool
	CategoryFilter   string
}

// Session represents a chat session. It lives for the process lifetime
// only.
type Session struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`

	mu               sync.RWMutex
	turns            []Turn
	useKnowledgeBase bool
	categoryFilter   string
	connected        bool
}

// New creates an empty, disconnected session
func New(opts Options) *Session {
	return &Session{
		ID:               uuid.New().String(),
		StartTime:        time.Now(),
		useKnowledgeBase: opts.UseKnowledgeBase,
		categoryFilter:   strings.TrimSpace(opts.CategoryFilter),
	}
}

// NewTurn builds a turn with a fresh id and the current time
func NewTurn(role Role, content string, sources []SourceRef) Turn {
	return Turn{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Sources:   sources,
		Timestamp: time.Now(),
	}
}

// Turns returns a copy of the transcript in order
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Append adds a turn to the end of the transcript
func (s *Session) Append(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
}

// Clear empties the transcript. Toggles and the connectivity flag are kept.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

func (s *Session) UseKnowledgeBase() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.useKnowledgeBase
}

func (s *Session) SetUseKnowledgeBase(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useKnowledgeBase = enabled
}

// CategoryFilter returns the active filter and whether one is set
func (s *Session) CategoryFilter() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categoryFilter, s.categoryFilter != ""
}

// SetCategoryFilter trims the value; an empty result clears the filter.
func (s *Session) SetCategoryFilter(category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categoryFilter = strings.TrimSpace(category)
}

// CategoryParam returns the filter as a request parameter, nil when unset
func (s *Session) CategoryParam() *string {
	c, ok := s.CategoryFilter()
	if !ok {
		return nil
	}
	return &c
}

func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Session) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}
