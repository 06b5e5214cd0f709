package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"JarvisChat/internal/backend"
	"JarvisChat/internal/session"
)

// HealthClient is the part of the backend the monitor needs
type HealthClient interface {
	HealthCheck(ctx context.Context) (*backend.HealthStatus, error)
}

// Monitor tracks whether the backend is reachable and mirrors that into
// the session's connected flag.
type Monitor struct {
	client HealthClient
	logger *slog.Logger

	mu         sync.RWMutex
	lastStatus *backend.HealthStatus
	lastErr    error
	checkedAt  time.Time
}

// NewMonitor creates a connectivity monitor
func NewMonitor(client HealthClient, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		client: client,
		logger: logger.With("component", "connectivity"),
	}
}

// Poll runs one health check. Any failure marks the session disconnected;
// a successful call marks it connected.
func (m *Monitor) Poll(ctx context.Context, sess *session.Session) (*backend.HealthStatus, error) {
	status, err := m.client.HealthCheck(ctx)

	wasConnected := sess.Connected()
	sess.SetConnected(err == nil)

	m.mu.Lock()
	m.lastStatus = status
	m.lastErr = err
	m.checkedAt = time.Now()
	m.mu.Unlock()

	if wasConnected != (err == nil) {
		if err != nil {
			m.logger.Warn("backend went offline", "error", err)
		} else if status != nil {
			m.logger.Info("backend online", "llm_loaded", status.LLMLoaded, "vector_db_connected", status.VectorDBConnected)
		} else {
			m.logger.Info("backend online")
		}
	}
	return status, err
}

// Snapshot is the result of the most recent poll
type Snapshot struct {
	Status    *backend.HealthStatus
	Err       error
	CheckedAt time.Time
}

// Last returns the most recent health result. CheckedAt is zero before
// the first poll.
func (m *Monitor) Last() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{Status: m.lastStatus, Err: m.lastErr, CheckedAt: m.checkedAt}
}

// Run polls immediately and then every interval until ctx is done.
// onChange, if set, is called whenever the connected flag flips.
func (m *Monitor) Run(ctx context.Context, sess *session.Session, interval time.Duration, onChange func(connected bool, status *backend.HealthStatus)) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	poll := func(first bool) {
		before := sess.Connected()
		status, err := m.Poll(ctx, sess)
		after := err == nil
		if onChange != nil && (first || before != after) {
			onChange(after, status)
		}
	}

	poll(true)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll(false)
		}
	}
}
