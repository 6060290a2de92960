package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectStopsAfterMaxAttempts(t *testing.T) {
	s := New(Config{
		DatabaseURL: "postgres://nowhere",
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
	}, slog.Default(), nil)

	attempts := 0
	dialErr := errors.New("connection refused")
	s.dial = func(ctx context.Context, url string) (*pgxpool.Pool, error) {
		attempts++
		return nil, dialErr
	}

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, dialErr)
	assert.Equal(t, 3, attempts)
	assert.False(t, s.Available())
	assert.Nil(t, s.Pool())
}

func TestConnectSucceedsAfterTransientFailures(t *testing.T) {
	s := New(Config{
		DatabaseURL: "postgres://primary",
		MaxAttempts: 5,
		BaseBackoff: time.Millisecond,
	}, slog.Default(), nil)

	attempts := 0
	s.dial = func(ctx context.Context, url string) (*pgxpool.Pool, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return &pgxpool.Pool{}, nil
	}

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, 3, attempts)
	assert.True(t, s.Available())
	assert.NotNil(t, s.Pool())
}

func TestConnectHonorsContextCancellation(t *testing.T) {
	s := New(Config{
		DatabaseURL: "postgres://primary",
		MaxAttempts: 5,
		BaseBackoff: time.Hour, // cancellation must win over the wait
	}, slog.Default(), nil)

	s.dial = func(ctx context.Context, url string) (*pgxpool.Pool, error) {
		return nil, errors.New("connection refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := s.Connect(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoffGrowsLinearly(t *testing.T) {
	s := New(Config{BaseBackoff: 2 * time.Second}, slog.Default(), nil)

	assert.Equal(t, 2*time.Second, s.backoff(1))
	assert.Equal(t, 4*time.Second, s.backoff(2))
	assert.Equal(t, 10*time.Second, s.backoff(5))
}

func TestDefaultsApplied(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.BaseBackoff)
	assert.NotZero(t, cfg.PingInterval)
	assert.NotZero(t, cfg.SyncInterval)
}
