// Package supervisor owns the physical connection to durable storage. It
// dials the primary with bounded, increasing backoff, watches its health, and
// keeps the standby mirror fresh so reads can fail over when the primary is
// down. The engine never sees any of this: it gets a pool for atomic units
// and an availability signal, nothing more.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/systembank/internal/standby"
)

// Config tunes connection and failover behavior.
type Config struct {
	DatabaseURL string

	// MaxAttempts bounds initial connection attempts; backoff between
	// attempt n and n+1 is n * BaseBackoff.
	MaxAttempts int
	BaseBackoff time.Duration

	PingInterval time.Duration
	SyncInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 2 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = time.Minute
	}
	return c
}

// Supervisor manages the primary pool and the optional standby mirror.
type Supervisor struct {
	cfg     Config
	logger  *slog.Logger
	standby *standby.Store

	dial func(ctx context.Context, url string) (*pgxpool.Pool, error)

	mu        sync.RWMutex
	pool      *pgxpool.Pool
	available atomic.Bool
}

// New creates a supervisor. standbyStore may be nil when no secondary is
// configured; reads then fail hard together with writes.
func New(cfg Config, logger *slog.Logger, standbyStore *standby.Store) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		standby: standbyStore,
		dial: func(ctx context.Context, url string) (*pgxpool.Pool, error) {
			pool, err := pgxpool.New(ctx, url)
			if err != nil {
				return nil, err
			}
			if err := pool.Ping(ctx); err != nil {
				pool.Close()
				return nil, err
			}
			return pool, nil
		},
	}
}

// backoff returns the wait before retrying after attempt (1-based). It grows
// linearly with the attempt number.
func (s *Supervisor) backoff(attempt int) time.Duration {
	return time.Duration(attempt) * s.cfg.BaseBackoff
}

// Connect dials the primary with bounded attempts. On success the supervisor
// reports available; on exhaustion the last error is returned and startup
// should fail hard.
func (s *Supervisor) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		pool, err := s.dial(ctx, s.cfg.DatabaseURL)
		if err == nil {
			s.mu.Lock()
			s.pool = pool
			s.mu.Unlock()
			s.available.Store(true)
			s.logger.Info("connected to primary store", "attempt", attempt)
			return nil
		}

		lastErr = err
		s.logger.Warn("primary store connection failed",
			"attempt", attempt, "max_attempts", s.cfg.MaxAttempts, "error", err)
		if attempt == s.cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff(attempt)):
		}
	}
	return fmt.Errorf("connect after %d attempts: %w", s.cfg.MaxAttempts, lastErr)
}

// Run watches primary health and refreshes the standby mirror until ctx is
// done. When the primary drops, availability flips off and write endpoints
// start rejecting; reads fail over to the mirror.
func (s *Supervisor) Run(ctx context.Context) {
	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()
	sync := time.NewTicker(s.cfg.SyncInterval)
	defer sync.Stop()

	// First mirror refresh right after startup rather than a full interval
	// later.
	s.syncStandby(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			s.checkHealth(ctx)
		case <-sync.C:
			s.syncStandby(ctx)
		}
	}
}

func (s *Supervisor) checkHealth(ctx context.Context) {
	pool := s.Pool()
	if pool == nil {
		s.available.Store(false)
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		if s.available.Swap(false) {
			s.logger.Error("primary store lost, entering degraded mode", "error", err)
		}
		return
	}
	if !s.available.Swap(true) {
		s.logger.Info("primary store recovered")
	}
}

func (s *Supervisor) syncStandby(ctx context.Context) {
	if s.standby == nil || !s.available.Load() {
		return
	}
	pool := s.Pool()
	if pool == nil {
		return
	}

	syncCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.standby.Sync(syncCtx, pool); err != nil {
		s.logger.Warn("standby mirror sync failed", "error", err)
		return
	}
	s.logger.Debug("standby mirror refreshed")
}

// Available reports whether the primary store is reachable. This is a health
// signal; write endpoints must reject independently while it is false.
func (s *Supervisor) Available() bool {
	return s.available.Load()
}

// Pool returns the primary pool, nil before Connect succeeds.
func (s *Supervisor) Pool() *pgxpool.Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool
}

// Standby returns the secondary read store, nil when not configured.
func (s *Supervisor) Standby() *standby.Store {
	return s.standby
}

// Close releases the primary pool and the standby store.
func (s *Supervisor) Close() {
	s.available.Store(false)
	s.mu.Lock()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	s.mu.Unlock()
	if s.standby != nil {
		_ = s.standby.Close()
	}
}
