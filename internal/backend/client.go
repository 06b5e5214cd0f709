package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBaseURL is where the inference-and-retrieval service listens by default
const DefaultBaseURL = "http://localhost:9000/api/v1"

const (
	MinTopK = 1
	MaxTopK = 20
)

// Timeouts holds the per-call budgets. Each call is a single attempt.
type Timeouts struct {
	Health time.Duration
	Chat   time.Duration
	Ingest time.Duration
	Search time.Duration
	Stats  time.Duration
}

// DefaultTimeouts returns the budgets the service is known to need.
// Chat is long because generation latency is expected.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Health: 5 * time.Second,
		Chat:   120 * time.Second,
		Ingest: 60 * time.Second,
		Search: 30 * time.Second,
		Stats:  10 * time.Second,
	}
}

// HealthStatus reports which backend subsystems are up
type HealthStatus struct {
	LLMLoaded         bool
	VectorDBConnected bool
}

// Source is a retrieved document cited by a chat reply
type Source struct {
	SourceID  string
	Relevance float64
}

// ChatReply is the result of a successful chat call
type ChatReply struct {
	Text        string
	Sources     []Source
	ContextUsed bool
}

// IngestResult is the result of a successful ingest call
type IngestResult struct {
	ChunksCreated int
}

// SearchResult is one knowledge-base hit
type SearchResult struct {
	ID     string
	Source string
	Text   string
	Score  float64
}

// SearchResponse keeps results in the order the backend returned them
type SearchResponse struct {
	TotalResults int
	Results      []SearchResult
}

// Stats describes the vector index
type Stats struct {
	TotalVectors int
	Dimension    int
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL    string
	Timeouts   Timeouts
	HTTPClient *http.Client
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Meter      metric.Meter
}

// Client is the typed request/response contract to the backend service.
// Every method returns either a value or a *Error; none of them touch
// conversation state.
type Client struct {
	baseURL    string
	timeouts   Timeouts
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
}

// New creates a backend client
func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeouts := opts.Timeouts
	defaults := DefaultTimeouts()
	if timeouts.Health <= 0 {
		timeouts.Health = defaults.Health
	}
	if timeouts.Chat <= 0 {
		timeouts.Chat = defaults.Chat
	}
	if timeouts.Ingest <= 0 {
		timeouts.Ingest = defaults.Ingest
	}
	if timeouts.Search <= 0 {
		timeouts.Search = defaults.Search
	}
	if timeouts.Stats <= 0 {
		timeouts.Stats = defaults.Stats
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		// budgets are enforced per call through the request context
		httpClient = &http.Client{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "backend")

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("jarvis/backend")
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter("jarvis/backend")
	}

	histogram, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", "error", err)
		histogram = nil
	}

	return &Client{
		baseURL:    baseURL,
		timeouts:   timeouts,
		httpClient: httpClient,
		logger:     logger,
		tracer:     tracer,
		duration:   histogram,
	}
}

// BaseURL returns the service root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ClampTopK forces k into [MinTopK, MaxTopK]
func ClampTopK(k int) int {
	if k < MinTopK {
		return MinTopK
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}

// normalizeCategory maps nil, "" and whitespace to nil so that "no filter"
// goes over the wire as null.
func normalizeCategory(category *string) *string {
	if category == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*category)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// HealthCheck asks the backend whether the model and vector store are up.
func (c *Client) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	var body HealthResponse
	if err := c.do(ctx, "health", http.MethodGet, "/health", nil, c.timeouts.Health, &body); err != nil {
		return nil, err
	}
	return &HealthStatus{
		LLMLoaded:         body.LLMLoaded,
		VectorDBConnected: body.VectorDBConnected,
	}, nil
}

// Chat sends one user message. Streaming is never requested.
func (c *Client) Chat(ctx context.Context, message string, useKnowledgeBase bool, category *string) (*ChatReply, error) {
	if strings.TrimSpace(message) == "" {
		return nil, validationError("chat", "message is required")
	}

	reqBody := ChatRequest{
		Message:          message,
		UseKnowledgeBase: useKnowledgeBase,
		CategoryFilter:   normalizeCategory(category),
		Stream:           false,
	}

	var body ChatResponse
	if err := c.do(ctx, "chat", http.MethodPost, "/chat", reqBody, c.timeouts.Chat, &body); err != nil {
		return nil, err
	}

	reply := &ChatReply{
		Text:        body.Response,
		ContextUsed: body.ContextUsed,
	}
	if len(body.Sources) > 0 {
		reply.Sources = make([]Source, len(body.Sources))
		for i, s := range body.Sources {
			reply.Sources[i] = Source{SourceID: s.Source, Relevance: s.Relevance}
		}
	}
	return reply, nil
}

// Ingest stores a document in the knowledge base. Text and source are
// required and checked before anything is sent.
func (c *Client) Ingest(ctx context.Context, text, source string, category *string) (*IngestResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, validationError("ingest", "text is required")
	}
	if strings.TrimSpace(source) == "" {
		return nil, validationError("ingest", "source is required")
	}

	reqBody := IngestRequest{
		Text:     text,
		Source:   source,
		Category: normalizeCategory(category),
	}

	var body IngestResponse
	if err := c.do(ctx, "ingest", http.MethodPost, "/knowledge/ingest", reqBody, c.timeouts.Ingest, &body); err != nil {
		return nil, err
	}
	return &IngestResult{ChunksCreated: body.ChunksCreated}, nil
}

// Search queries the knowledge base. topK is clamped into [1,20]; results
// keep the backend's order.
func (c *Client) Search(ctx context.Context, query string, topK int, category *string) (*SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, validationError("search", "query is required")
	}

	reqBody := SearchRequest{
		Query:    query,
		TopK:     ClampTopK(topK),
		Category: normalizeCategory(category),
	}

	var body SearchResponseBody
	if err := c.do(ctx, "search", http.MethodPost, "/knowledge/search", reqBody, c.timeouts.Search, &body); err != nil {
		return nil, err
	}

	resp := &SearchResponse{
		TotalResults: body.TotalResults,
		Results:      make([]SearchResult, len(body.Results)),
	}
	for i, r := range body.Results {
		resp.Results[i] = SearchResult{ID: r.ID, Source: r.Source, Text: r.Text, Score: r.Score}
	}
	return resp, nil
}

// Stats fetches vector index statistics
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var body StatsResponse
	if err := c.do(ctx, "stats", http.MethodGet, "/knowledge/stats", nil, c.timeouts.Stats, &body); err != nil {
		return nil, err
	}
	return &Stats{TotalVectors: body.TotalVectors, Dimension: body.Dimension}, nil
}

// do performs one JSON round-trip under its own timeout and converts every
// failure into a *Error.
func (c *Client) do(ctx context.Context, op, method, path string, payload any, timeout time.Duration, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "backend."+op, trace.WithAttributes(
		attribute.String("backend.op", op),
		attribute.String("http.method", method),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		c.recordDuration(ctx, op, start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Warn("backend call failed", "op", op, "kind", KindOf(err).String(), "error", err)
			return
		}
		c.logger.Debug("backend call succeeded", "op", op, "duration_ms", time.Since(start).Milliseconds())
	}()
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Op: op, Kind: KindUnknown, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		jsonData, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return &Error{Op: op, Kind: KindUnknown, Err: fmt.Errorf("failed to marshal request: %w", marshalErr)}
		}
		body = bytes.NewReader(jsonData)
	}

	req, reqErr := http.NewRequestWithContext(callCtx, method, c.baseURL+path, body)
	if reqErr != nil {
		return &Error{Op: op, Kind: KindUnknown, Err: fmt.Errorf("failed to create request: %w", reqErr)}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return classifyTransport(op, doErr)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return classifyTransport(op, readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("backend error body", "op", op, "status", resp.StatusCode, "body", truncate(string(respBody), 256))
		return &Error{Op: op, Kind: KindServerError, StatusCode: resp.StatusCode, Err: fmt.Errorf("API error: %s", resp.Status)}
	}

	if unmarshalErr := json.Unmarshal(respBody, out); unmarshalErr != nil {
		return &Error{Op: op, Kind: KindMalformedResponse, Err: fmt.Errorf("failed to unmarshal response: %w", unmarshalErr)}
	}
	return nil
}

func (c *Client) recordDuration(ctx context.Context, op string, start time.Time, err error) {
	if c.duration == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	c.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(
			attribute.String("backend.op", op),
			attribute.String("outcome", outcome),
		),
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
