package tui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"JarvisChat/internal/backend"
	"JarvisChat/internal/chatbot"
	"JarvisChat/internal/config"
	"JarvisChat/internal/session"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T, healthy bool) (Model, *atomic.Int32) {
	t.Helper()

	var chats atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"llm_loaded":true,"vector_db_connected":false}`))
	})
	mux.HandleFunc("/api/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		chats.Add(1)
		w.Write([]byte(`{"response":"4","sources":[],"context_used":false}`))
	})
	mux.HandleFunc("/api/v1/knowledge/search", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total_results":1,"results":[{"id":"7","source":"manual.md","text":"hold reset","score":0.91}]}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Backend.BaseURL = server.URL + "/api/v1"
	client := backend.New(backend.Options{BaseURL: cfg.Backend.BaseURL, Timeouts: chatbot.Timeouts(cfg.Backend)})
	cb := chatbot.Assemble(cfg, client, nil, nil)
	return NewModel(cb), &chats
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	got, ok := next.(Model)
	require.True(t, ok)
	return got, cmd
}

func TestHealthPollUpdatesStatus(t *testing.T) {
	m, _ := newTestModel(t, true)
	assert.Contains(t, m.statusLine(), "Connecting")

	m, cmd := update(t, m, m.pollCmd()())
	assert.NotNil(t, cmd, "next health tick should be scheduled")
	assert.True(t, m.connected)
	assert.Contains(t, m.statusLine(), "System Online")
	assert.Contains(t, m.statusLine(), "Memory: Offline")
	checked := m.cb.Monitor().Last().CheckedAt
	require.False(t, checked.IsZero())
	assert.Contains(t, m.statusLine(), "(checked "+checked.Local().Format("15:04:05")+")")
}

func TestSubmitDisablesInputUntilReply(t *testing.T) {
	m, chats := newTestModel(t, true)
	m, _ = update(t, m, m.pollCmd()())

	m.chatInput.SetValue("What is 2+2?")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.chatBusy)
	assert.False(t, m.chatInput.Focused())
	assert.Equal(t, "What is 2+2?", m.pending)
	assert.Contains(t, m.viewport.View(), "What is 2+2?")

	// typing and enter are ignored while the reply is outstanding
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Nil(t, cmd)
	assert.Empty(t, m.chatInput.Value())
	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)

	res := m.cb.Dispatch(context.Background(), chatbot.Intent{Kind: chatbot.IntentSubmit, Text: "What is 2+2?"})
	m, _ = update(t, m, dispatchMsg{res: res})
	assert.False(t, m.chatBusy)
	assert.Empty(t, m.pending)
	require.Len(t, m.turns, 2)
	assert.Equal(t, session.RoleAssistant, m.turns[1].Role)
	assert.Equal(t, "4", m.turns[1].Content)
	assert.Equal(t, int32(1), chats.Load())
}

func TestSubmitOfflineDoesNotCallChat(t *testing.T) {
	m, chats := newTestModel(t, false)
	m, _ = update(t, m, m.pollCmd()())
	assert.Contains(t, m.statusLine(), "System Offline")

	m.chatInput.SetValue("hello")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.False(t, m.chatBusy)
	assert.Equal(t, offlineNotice, m.status)
	assert.Zero(t, chats.Load())
}

func TestSearchTabKeepsTranscript(t *testing.T) {
	m, _ := newTestModel(t, true)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, tabSearch, m.tab)
	assert.True(t, m.searchInput.Focused())

	m.searchInput.SetValue("reset")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.searchBusy)
	assert.False(t, m.chatBusy)

	res := m.cb.Dispatch(context.Background(), chatbot.Intent{Kind: chatbot.IntentSearch, Text: "reset"})
	m, _ = update(t, m, dispatchMsg{res: res})
	assert.False(t, m.searchBusy)
	require.NotNil(t, m.search)
	assert.Equal(t, "7", m.search.Results[0].ID)
	assert.Empty(t, m.turns)
	assert.Contains(t, m.viewport.View(), "Found 1 results")
}

func TestSlashSearchFromChatSwitchesTab(t *testing.T) {
	m, _ := newTestModel(t, true)
	m.chatInput.SetValue("/search -k 3 reset")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, tabSearch, m.tab)
	assert.Equal(t, "reset", m.searchInput.Value())
	assert.True(t, m.searchBusy)
}

func TestCommandNotices(t *testing.T) {
	m, _ := newTestModel(t, true)

	m.chatInput.SetValue("/kb maybe")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Contains(t, m.status, "usage")

	res := m.cb.Dispatch(context.Background(), chatbot.Intent{Kind: chatbot.IntentToggleKB, Enabled: false})
	m, _ = update(t, m, dispatchMsg{res: res})
	assert.Equal(t, "Knowledge base retrieval disabled.", m.status)
	assert.Contains(t, m.statusLine(), "[kb off]")

	res = m.cb.Dispatch(context.Background(), chatbot.Intent{Kind: chatbot.IntentHelp})
	m, _ = update(t, m, dispatchMsg{res: res})
	assert.Contains(t, m.viewport.View(), "/ingest-file")
}

func TestTranscriptMarkdown(t *testing.T) {
	turns := []session.Turn{
		session.NewTurn(session.RoleUser, "How do I reset?", nil),
		session.NewTurn(session.RoleAssistant, "Hold the button.", []session.SourceRef{{SourceID: "manual.md", Relevance: 0.87}}),
	}
	md := transcriptMarkdown(turns, "and then?")
	assert.Contains(t, md, "**You:** How do I reset?")
	assert.Contains(t, md, "**Jarvis:** Hold the button.")
	assert.Contains(t, md, "> - manual.md (score 0.87)")
	assert.Contains(t, md, "**You:** and then?")
}

func TestSearchMarkdown(t *testing.T) {
	assert.Contains(t, searchMarkdown(nil, nil), "Type a query")

	md := searchMarkdown(&backend.SearchResponse{
		TotalResults: 1,
		Results:      []backend.SearchResult{{ID: "9", Text: "line one\nline two", Score: 0.5}},
	}, nil)
	assert.Contains(t, md, "Found 1 results")
	assert.Contains(t, md, "Source: `Unknown`")
	assert.Contains(t, md, "> line two")

	md = searchMarkdown(nil, &backend.Error{Op: "search", Kind: backend.KindServerError, StatusCode: 503})
	assert.Contains(t, md, "API Error: 503")
}

func TestViewBeforeResize(t *testing.T) {
	m, _ := newTestModel(t, true)
	assert.Equal(t, "Starting...", m.View())

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	assert.NotNil(t, m.renderer)
	assert.Contains(t, m.View(), "Search")
}
