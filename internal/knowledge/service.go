package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"JarvisChat/internal/backend"
	"JarvisChat/internal/cache"

	"github.com/google/uuid"
)

// ErrFileTooLarge is returned when a file exceeds the configured limit
var ErrFileTooLarge = errors.New("file too large")

// Document is a piece of text to add to the knowledge base
type Document struct {
	Text     string
	Source   string
	Category string
}

// Client is the part of the backend the service needs
type Client interface {
	Ingest(ctx context.Context, text, source string, category *string) (*backend.IngestResult, error)
	Stats(ctx context.Context) (*backend.Stats, error)
}

// Service adds documents to the knowledge base and reports on it.
// It never touches the conversation.
type Service struct {
	client   Client
	ledger   *Ledger
	stats    *cache.TTL[*backend.Stats]
	statsKey string
	logger   *slog.Logger
}

// NewService creates a knowledge service. ledger may be nil.
func NewService(client Client, ledger *Ledger, statsTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	// stats are per backend index
	var baseURL string
	if b, ok := client.(interface{ BaseURL() string }); ok {
		baseURL = b.BaseURL()
	}
	return &Service{
		client:   client,
		ledger:   ledger,
		stats:    cache.NewTTL[*backend.Stats](statsTTL),
		statsKey: cache.GenerateCacheKey(baseURL, "stats"),
		logger:   logger.With("component", "knowledge"),
	}
}

// Ingest sends doc to the backend and records it in the ledger
func (s *Service) Ingest(ctx context.Context, doc Document) (*backend.IngestResult, error) {
	var category *string
	if c := strings.TrimSpace(doc.Category); c != "" {
		category = &c
	}

	res, err := s.client.Ingest(ctx, doc.Text, doc.Source, category)
	if err != nil {
		return nil, err
	}

	s.stats.Invalidate(s.statsKey)
	s.logger.Info("document ingested", "source", doc.Source, "category", doc.Category, "chunks", res.ChunksCreated)

	if s.ledger != nil {
		rec := Record{
			ID:          uuid.New().String(),
			Source:      doc.Source,
			Category:    strings.TrimSpace(doc.Category),
			Chunks:      res.ChunksCreated,
			Bytes:       len(doc.Text),
			ContentHash: ContentHash(doc.Text),
			IngestedAt:  time.Now(),
		}
		if err := s.ledger.Add(ctx, rec); err != nil {
			// the backend already has the document
			s.logger.Warn("failed to record ingestion", "source", doc.Source, "error", err)
		}
	}
	return res, nil
}

// Stats returns vector index statistics, cached for the configured TTL
func (s *Service) Stats(ctx context.Context) (*backend.Stats, error) {
	if st, ok := s.stats.Get(s.statsKey); ok {
		return st, nil
	}
	st, err := s.client.Stats(ctx)
	if err != nil {
		return nil, err
	}
	s.stats.Set(s.statsKey, st)
	return st, nil
}

// Records returns recent ingestions, newest first
func (s *Service) Records(ctx context.Context, limit int) ([]Record, error) {
	if s.ledger == nil {
		return nil, nil
	}
	return s.ledger.List(ctx, limit)
}

// Count returns the total number of recorded ingestions
func (s *Service) Count(ctx context.Context) (int, error) {
	if s.ledger == nil {
		return 0, nil
	}
	return s.ledger.Count(ctx)
}

// LatestHash returns the hash of the last ingested content for source
func (s *Service) LatestHash(ctx context.Context, source string) (string, bool, error) {
	if s.ledger == nil {
		return "", false, nil
	}
	return s.ledger.LatestHash(ctx, source)
}

// ReadDocument loads a file as a Document named after its base name
func ReadDocument(path, category string, maxBytes int64) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if maxBytes > 0 {
		r = io.LimitReader(f, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return Document{}, fmt.Errorf("%s: %w (limit %d bytes)", path, ErrFileTooLarge, maxBytes)
	}

	return Document{
		Text:     string(data),
		Source:   filepath.Base(path),
		Category: category,
	}, nil
}

// ContentHash is the hex sha256 of text
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
