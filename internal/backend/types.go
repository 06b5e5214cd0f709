package backend

// HealthResponse represents the response body of GET /health
type HealthResponse struct {
	LLMLoaded         bool `json:"llm_loaded"`
	VectorDBConnected bool `json:"vector_db_connected"`
}

// ChatRequest represents the request body for POST /chat
type ChatRequest struct {
	Message          string  `json:"message"`
	UseKnowledgeBase bool    `json:"use_knowledge_base"`
	CategoryFilter   *string `json:"category_filter"` // nil is sent as null, never ""
	Stream           bool    `json:"stream"`
}

// ChatResponse represents the response body of POST /chat
type ChatResponse struct {
	Response    string        `json:"response"`
	Sources     []SourceEntry `json:"sources"`
	ContextUsed bool          `json:"context_used"`
}

// SourceEntry is one retrieved document cited by a chat response
type SourceEntry struct {
	Source    string  `json:"source"`
	Relevance float64 `json:"relevance"`
}

// IngestRequest represents the request body for POST /knowledge/ingest
type IngestRequest struct {
	Text     string  `json:"text"`
	Source   string  `json:"source"`
	Category *string `json:"category"`
}

// IngestResponse represents the response body of POST /knowledge/ingest
type IngestResponse struct {
	ChunksCreated int `json:"chunks_created"`
}

// SearchRequest represents the request body for POST /knowledge/search
type SearchRequest struct {
	Query    string  `json:"query"`
	TopK     int     `json:"top_k"`
	Category *string `json:"category"`
}

// SearchResponseBody represents the response body of POST /knowledge/search
type SearchResponseBody struct {
	TotalResults int              `json:"total_results"`
	Results      []SearchHitEntry `json:"results"`
}

// SearchHitEntry is a single search hit as returned by the backend
type SearchHitEntry struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// StatsResponse represents the response body of GET /knowledge/stats
type StatsResponse struct {
	TotalVectors int `json:"total_vectors"`
	Dimension    int `json:"dimension"`
}
