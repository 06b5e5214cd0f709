package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"JarvisChat/internal/backend"
	"JarvisChat/internal/config"
	"JarvisChat/internal/conversation"
	"JarvisChat/internal/knowledge"
	"JarvisChat/internal/session"
	"JarvisChat/internal/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-process stand-in for the inference service
type fakeBackend struct {
	mu        sync.Mutex
	healthy   bool
	chatCalls int
	lastChat  map[string]any
	lastQuery map[string]any
	ingested  []map[string]any
}

func (f *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		healthy := f.healthy
		f.mu.Unlock()
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"llm_loaded":true,"vector_db_connected":true}`))
	})
	mux.HandleFunc("/api/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.chatCalls++
		f.lastChat = body
		f.mu.Unlock()
		if body["use_knowledge_base"] == true {
			w.Write([]byte(`{"response":"From the manual: hold reset for 10s.","sources":[{"source":"manual.md","relevance":0.87}],"context_used":true}`))
			return
		}
		w.Write([]byte(`{"response":"4","sources":[],"context_used":false}`))
	})
	mux.HandleFunc("/api/v1/knowledge/ingest", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.ingested = append(f.ingested, body)
		f.mu.Unlock()
		w.Write([]byte(`{"chunks_created":2}`))
	})
	mux.HandleFunc("/api/v1/knowledge/search", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.lastQuery = body
		f.mu.Unlock()
		w.Write([]byte(`{"total_results":2,"results":[{"id":"7","source":"manual.md","text":"hold reset","score":0.91},{"id":"3","source":"faq.md","text":"power cycle","score":0.52}]}`))
	})
	mux.HandleFunc("/api/v1/knowledge/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total_vectors":42,"dimension":384}`))
	})
	return mux
}

func (f *fakeBackend) setHealthy(ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = ok
}

func (f *fakeBackend) chats() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatCalls
}

// createTestBot wires a ChatBot against a fake backend with an in-memory ledger
func createTestBot(t *testing.T) (*ChatBot, *fakeBackend) {
	t.Helper()

	fb := &fakeBackend{healthy: true}
	server := httptest.NewServer(fb.handler(t))
	t.Cleanup(server.Close)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Backend.BaseURL = server.URL + "/api/v1"

	db, err := telemetry.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ledger, err := knowledge.NewLedger(db, nil)
	require.NoError(t, err)

	client := backend.New(backend.Options{BaseURL: cfg.Backend.BaseURL, Timeouts: Timeouts(cfg.Backend)})
	return Assemble(cfg, client, ledger, nil), fb
}

func TestDispatchSubmitRoundTrip(t *testing.T) {
	cb, fb := createTestBot(t)
	ctx := context.Background()

	cb.Dispatch(ctx, Intent{Kind: IntentRefreshHealth})
	require.True(t, cb.Session().Connected())

	cb.Dispatch(ctx, Intent{Kind: IntentToggleKB, Enabled: false})
	res := cb.Dispatch(ctx, Intent{Kind: IntentSubmit, Text: "What is 2+2?"})
	require.NoError(t, res.Err)
	require.Len(t, res.Transcript, 2)
	assert.Equal(t, "What is 2+2?", res.Transcript[0].Content)
	assert.Equal(t, "4", res.Transcript[1].Content)
	assert.Nil(t, res.Transcript[1].Sources)

	assert.Equal(t, false, fb.lastChat["use_knowledge_base"])
	assert.Nil(t, fb.lastChat["category_filter"])
}

func TestDispatchSubmitWithKnowledgeBase(t *testing.T) {
	cb, fb := createTestBot(t)
	ctx := context.Background()
	cb.Dispatch(ctx, Intent{Kind: IntentRefreshHealth})

	res := cb.Dispatch(ctx, Intent{Kind: IntentSetFilter, Text: " manuals "})
	assert.Equal(t, `Category filter set to "manuals".`, res.Notice)

	res = cb.Dispatch(ctx, Intent{Kind: IntentSubmit, Text: "How do I reset?"})
	require.NoError(t, res.Err)
	last := res.Transcript[len(res.Transcript)-1]
	require.Len(t, last.Sources, 1)
	assert.Equal(t, session.SourceRef{SourceID: "manual.md", Relevance: 0.87}, last.Sources[0])
	assert.Equal(t, "manuals", fb.lastChat["category_filter"])
}

func TestDispatchSubmitOffline(t *testing.T) {
	cb, fb := createTestBot(t)
	fb.setHealthy(false)
	ctx := context.Background()

	res := cb.Dispatch(ctx, Intent{Kind: IntentRefreshHealth})
	require.Error(t, res.Err)
	assert.False(t, res.Connected)

	res = cb.Dispatch(ctx, Intent{Kind: IntentSubmit, Text: "hello"})
	assert.ErrorIs(t, res.Err, conversation.ErrDisconnected)
	assert.Empty(t, res.Transcript)
	assert.Zero(t, fb.chats())
}

func TestDispatchSearchDoesNotTouchTranscript(t *testing.T) {
	cb, fb := createTestBot(t)
	ctx := context.Background()
	cb.Session().SetCategoryFilter("manuals")

	res := cb.Dispatch(ctx, Intent{Kind: IntentSearch, Text: "reset", TopK: intPtr(50)})
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Search.TotalResults)
	assert.Equal(t, "7", res.Search.Results[0].ID)
	assert.Equal(t, "3", res.Search.Results[1].ID)
	assert.Empty(t, res.Transcript)

	assert.Equal(t, float64(20), fb.lastQuery["top_k"])
	assert.Equal(t, "manuals", fb.lastQuery["category"])

	cb.Dispatch(ctx, Intent{Kind: IntentSearch, Text: "reset"})
	assert.Equal(t, float64(cb.Config().Search.DefaultTopK), fb.lastQuery["top_k"])
	assert.Equal(t, "reset", cb.Retrieval().Last().Query)
}

func TestDispatchSearchExplicitZeroTopK(t *testing.T) {
	cb, fb := createTestBot(t)

	in, err := ParseInput("/search -k 0 vector db")
	require.NoError(t, err)
	res := cb.Dispatch(context.Background(), in)
	require.NoError(t, res.Err)

	assert.Equal(t, float64(1), fb.lastQuery["top_k"])
	assert.Equal(t, "vector db", fb.lastQuery["query"])
	assert.Equal(t, 1, cb.Retrieval().Last().TopK)
}

func TestDispatchIngestAndList(t *testing.T) {
	cb, fb := createTestBot(t)
	ctx := context.Background()

	res := cb.Dispatch(ctx, Intent{Kind: IntentIngest, Document: knowledge.Document{Text: "", Source: "doc1"}})
	require.Error(t, res.Err)
	assert.Equal(t, backend.KindValidation, backend.KindOf(res.Err))
	assert.Empty(t, fb.ingested)

	res = cb.Dispatch(ctx, Intent{Kind: IntentIngest, Document: knowledge.Document{Text: "router manual", Source: "doc1", Category: "manuals"}})
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Ingest.ChunksCreated)
	assert.Equal(t, "Stored 2 chunks from doc1.", res.Notice)
	assert.Empty(t, res.Transcript)

	path := filepath.Join(t.TempDir(), "faq.md")
	require.NoError(t, os.WriteFile(path, []byte("# FAQ"), 0644))
	res = cb.Dispatch(ctx, Intent{Kind: IntentIngestFile, Text: path})
	require.NoError(t, res.Err)
	assert.Equal(t, "faq.md", fb.ingested[1]["source"])
	assert.Nil(t, fb.ingested[1]["category"])

	res = cb.Dispatch(ctx, Intent{Kind: IntentListIngested})
	require.NoError(t, res.Err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, 2, res.RecordTotal)
	assert.Equal(t, "faq.md", res.Records[0].Source)
	assert.Equal(t, "doc1", res.Records[1].Source)
	assert.Contains(t, FormatRecords(res.Records, res.RecordTotal), "Ingested documents (2):")
}

func TestDispatchRefreshHealthReportsCheckTime(t *testing.T) {
	cb, _ := createTestBot(t)

	res := cb.Dispatch(context.Background(), Intent{Kind: IntentRefreshHealth})
	require.NoError(t, res.Err)
	assert.False(t, res.CheckedAt.IsZero())
	assert.Equal(t, cb.Monitor().Last().CheckedAt, res.CheckedAt)

	var out bytes.Buffer
	Render(NewConsolePresenter(&out, true), res)
	assert.Contains(t, out.String(), "● System Online")
	assert.Contains(t, out.String(), "Last checked "+res.CheckedAt.Local().Format("15:04:05"))
}

func TestDispatchStats(t *testing.T) {
	cb, _ := createTestBot(t)
	res := cb.Dispatch(context.Background(), Intent{Kind: IntentStats})
	require.NoError(t, res.Err)
	assert.Equal(t, 42, res.Stats.TotalVectors)
	assert.Equal(t, "Vectors: 42  Dimensions: 384", FormatStats(res.Stats))
}

func TestDispatchClearKeepsToggles(t *testing.T) {
	cb, _ := createTestBot(t)
	ctx := context.Background()
	cb.Dispatch(ctx, Intent{Kind: IntentRefreshHealth})
	cb.Dispatch(ctx, Intent{Kind: IntentToggleKB, Enabled: false})
	cb.Dispatch(ctx, Intent{Kind: IntentSubmit, Text: "hi"})

	res := cb.Dispatch(ctx, Intent{Kind: IntentClearHistory})
	assert.Empty(t, res.Transcript)
	assert.False(t, cb.Session().UseKnowledgeBase())
	assert.True(t, res.Connected)
}

func TestRunREPL(t *testing.T) {
	cb, fb := createTestBot(t)
	cb.Session().SetUseKnowledgeBase(false)

	in := strings.NewReader("What is 2+2?\n/kb on\n/stats\n/bogus\n/quit\nnever sent\n")
	var out bytes.Buffer
	err := cb.Run(context.Background(), in, &out, NewConsolePresenter(&out, true))
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "● System Online")
	assert.Contains(t, text, "Jarvis: 4")
	assert.Contains(t, text, "Knowledge base retrieval enabled.")
	assert.Contains(t, text, "Vectors: 42  Dimensions: 384")
	assert.Contains(t, text, "unknown command")
	assert.Contains(t, text, "Goodbye!")
	assert.Equal(t, 1, fb.chats())
	assert.Equal(t, 2, cb.Session().Len())
}

func TestRunREPLOffline(t *testing.T) {
	cb, fb := createTestBot(t)
	fb.setHealthy(false)

	var out bytes.Buffer
	err := cb.Run(context.Background(), strings.NewReader("hello\n"), &out, NewConsolePresenter(&out, true))
	require.NoError(t, err)

	assert.Contains(t, out.String(), "● System Offline")
	assert.Contains(t, out.String(), "chat is disabled")
	assert.Zero(t, fb.chats())
	assert.Zero(t, cb.Session().Len())
}

func TestConsolePresenterSearch(t *testing.T) {
	var out bytes.Buffer
	p := NewConsolePresenter(&out, true)
	p.RenderSearch(&backend.SearchResponse{
		TotalResults: 1,
		Results:      []backend.SearchResult{{ID: "9", Text: "hello"}},
	}, nil)
	assert.Contains(t, out.String(), "Found 1 results")
	assert.Contains(t, out.String(), "Relevance: 0.000  Source: Unknown  ID: 9")

	out.Reset()
	p.RenderSearch(nil, &backend.Error{Op: "search", Kind: backend.KindServerError, StatusCode: 500})
	assert.Contains(t, out.String(), "Search failed: API Error: 500")
}

func TestFormatRecordsEmpty(t *testing.T) {
	assert.Equal(t, "No documents ingested yet.", FormatRecords(nil, 0))
}

func TestFormatRecordsShowsTotal(t *testing.T) {
	records := []knowledge.Record{{Source: "a.md", Chunks: 3, Bytes: 120}, {Source: "b.md", Category: "notes", Chunks: 1, Bytes: 9}}
	out := FormatRecords(records, 35)
	assert.Contains(t, out, "Ingested documents (latest 2 of 35):")
	assert.Contains(t, out, "b.md [notes]  1 chunks, 9 bytes")
}
