package chatbot

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"JarvisChat/internal/backend"
	"JarvisChat/internal/config"
	"JarvisChat/internal/connectivity"
	"JarvisChat/internal/conversation"
	"JarvisChat/internal/knowledge"
	"JarvisChat/internal/retrieval"
	"JarvisChat/internal/session"
	"JarvisChat/internal/telemetry"
)

// recent ingestions shown by /sources
const listIngestedLimit = 20

// ChatBot represents the main application: one session plus the
// controllers that act on it.
type ChatBot struct {
	config       *config.Config
	logger       *slog.Logger
	client       *backend.Client
	session      *session.Session
	conversation *conversation.Controller
	retrieval    *retrieval.Controller
	monitor      *connectivity.Monitor
	knowledge    *knowledge.Service

	db      *sql.DB
	closers []func()
}

// Result is what a dispatched intent produced. Presenters render it.
type Result struct {
	Intent     Intent
	Transcript []session.Turn
	Exchange   *conversation.Exchange
	Search     *backend.SearchResponse
	Ingest     *backend.IngestResult
	Stats      *backend.Stats
	Health     *backend.HealthStatus
	Connected  bool
	CheckedAt  time.Time
	Records    []knowledge.Record
	// RecordTotal counts every ingestion, not just the Records shown
	RecordTotal int
	Notice     string
	Err        error
	Quit       bool
}

// NewChatBot creates a new ChatBot instance with logging, telemetry and
// the ingest ledger initialized from cfg.
func NewChatBot(ctx context.Context, cfg *config.Config) (*ChatBot, error) {
	logger, logFile, err := telemetry.InitLogger(cfg.Logging, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	db, err := telemetry.InitDB(cfg.Knowledge.LedgerPath)
	if err != nil {
		shutdown()
		logFile.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	ledger, err := knowledge.NewLedger(db, logger)
	if err != nil {
		db.Close()
		shutdown()
		logFile.Close()
		return nil, fmt.Errorf("failed to initialize ingest ledger: %w", err)
	}

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	client := backend.New(backend.Options{
		BaseURL:  cfg.Backend.BaseURL,
		Timeouts: Timeouts(cfg.Backend),
		Logger:   logger,
		Tracer:   tracer,
		Meter:    meter,
	})

	cb := Assemble(cfg, client, ledger, logger)
	cb.db = db
	cb.closers = append(cb.closers, shutdown, func() { logFile.Close() })
	return cb, nil
}

// Assemble wires a ChatBot from already-built parts. ledger may be nil.
func Assemble(cfg *config.Config, client *backend.Client, ledger *knowledge.Ledger, logger *slog.Logger) *ChatBot {
	if logger == nil {
		logger = slog.Default()
	}

	sess := session.New(session.Options{
		UseKnowledgeBase: cfg.Session.UseKnowledgeBase,
		CategoryFilter:   cfg.Session.CategoryFilter,
	})
	logger.Info("created new session", "session_id", sess.ID, "backend", client.BaseURL())

	return &ChatBot{
		config:       cfg,
		logger:       logger.With("component", "chatbot"),
		client:       client,
		session:      sess,
		conversation: conversation.NewController(client, logger),
		retrieval:    retrieval.NewController(client, logger),
		monitor:      connectivity.NewMonitor(client, logger),
		knowledge:    knowledge.NewService(client, ledger, cfg.Knowledge.StatsTTL, logger),
	}
}

// Timeouts converts the configured budgets for the backend client
func Timeouts(cfg config.BackendConfig) backend.Timeouts {
	return backend.Timeouts{
		Health: cfg.HealthTimeout,
		Chat:   cfg.ChatTimeout,
		Ingest: cfg.IngestTimeout,
		Search: cfg.SearchTimeout,
		Stats:  cfg.StatsTimeout,
	}
}

func (cb *ChatBot) Config() *config.Config { return cb.config }
func (cb *ChatBot) Session() *session.Session { return cb.session }
func (cb *ChatBot) Monitor() *connectivity.Monitor { return cb.monitor }
func (cb *ChatBot) Knowledge() *knowledge.Service { return cb.knowledge }
func (cb *ChatBot) Retrieval() *retrieval.Controller { return cb.retrieval }
func (cb *ChatBot) Conversation() *conversation.Controller { return cb.conversation }
func (cb *ChatBot) Logger() *slog.Logger { return cb.logger }

// Dispatch routes an intent to the controller that owns it. Failures are
// reported in Result.Err; only chat ever changes the transcript.
func (cb *ChatBot) Dispatch(ctx context.Context, in Intent) Result {
	res := Result{Intent: in}
	cb.logger.Debug("dispatching intent", "kind", in.Kind.String())

	switch in.Kind {
	case IntentSubmit:
		ex, err := cb.conversation.Submit(ctx, cb.session, in.Text)
		res.Exchange = ex
		res.Err = err

	case IntentClearHistory:
		cb.conversation.Clear(cb.session)
		res.Notice = "Conversation cleared."

	case IntentToggleKB:
		cb.session.SetUseKnowledgeBase(in.Enabled)
		if in.Enabled {
			res.Notice = "Knowledge base retrieval enabled."
		} else {
			res.Notice = "Knowledge base retrieval disabled."
		}

	case IntentSetFilter:
		cb.session.SetCategoryFilter(in.Text)
		if c, ok := cb.session.CategoryFilter(); ok {
			res.Notice = fmt.Sprintf("Category filter set to %q.", c)
		} else {
			res.Notice = "Category filter cleared."
		}

	case IntentSearch:
		topK := cb.config.Search.DefaultTopK
		if in.TopK != nil {
			topK = *in.TopK
		}
		category, _ := cb.session.CategoryFilter()
		res.Search, res.Err = cb.retrieval.Search(ctx, in.Text, topK, category)

	case IntentIngest:
		res.Ingest, res.Err = cb.knowledge.Ingest(ctx, in.Document)
		if res.Err == nil {
			res.Notice = fmt.Sprintf("Stored %d chunks from %s.", res.Ingest.ChunksCreated, in.Document.Source)
		}

	case IntentIngestFile:
		doc, err := knowledge.ReadDocument(in.Text, in.Document.Category, cb.config.Knowledge.MaxFileBytes)
		if err != nil {
			res.Err = err
			break
		}
		res.Ingest, res.Err = cb.knowledge.Ingest(ctx, doc)
		if res.Err == nil {
			res.Notice = fmt.Sprintf("Stored %d chunks from %s.", res.Ingest.ChunksCreated, doc.Source)
		}

	case IntentRefreshHealth:
		res.Health, res.Err = cb.monitor.Poll(ctx, cb.session)
		res.CheckedAt = cb.monitor.Last().CheckedAt

	case IntentStats:
		res.Stats, res.Err = cb.knowledge.Stats(ctx)

	case IntentListIngested:
		res.Records, res.Err = cb.knowledge.Records(ctx, listIngestedLimit)
		if res.Err == nil {
			res.RecordTotal, res.Err = cb.knowledge.Count(ctx)
		}

	case IntentHelp:
		res.Notice = HelpText

	case IntentQuit:
		res.Quit = true

	default:
		res.Err = fmt.Errorf("unsupported intent %d", in.Kind)
	}

	res.Transcript = cb.session.Turns()
	res.Connected = cb.session.Connected()
	return res
}

// Close releases the database, telemetry and log file
func (cb *ChatBot) Close() error {
	var firstErr error
	if cb.db != nil {
		if err := cb.db.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}
	for i := len(cb.closers) - 1; i >= 0; i-- {
		cb.closers[i]()
	}
	cb.closers = nil
	return firstErr
}

var _ io.Closer = (*ChatBot)(nil)
