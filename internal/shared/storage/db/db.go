package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver

	"clinical-review-backend/internal/shared/telemetry"
)

// Profile names the kind of process a pool is sized for.
type Profile string

const (
	ProfileServer  Profile = "server"
	ProfileLambda  Profile = "lambda"
	ProfileMigrate Profile = "migrate"
)

// ErrNoDatabaseURL is returned when no connection string is configured.
var ErrNoDatabaseURL = errors.New("DATABASE_URL is empty")

// Options controls pool sizing and the connect-time ping.
type Options struct {
	Profile         Profile
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// Overrides carry operator pool settings. Zero fields keep the profile value.
type Overrides struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

var profiles = map[Profile]Options{
	// Lambda runs many small instances; each keeps a tiny pool.
	ProfileLambda:  {MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxIdleTime: 30 * time.Second, ConnMaxLifetime: 15 * time.Minute, PingTimeout: 3 * time.Second},
	ProfileServer:  {MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxIdleTime: 2 * time.Minute, ConnMaxLifetime: time.Hour, PingTimeout: 5 * time.Second},
	ProfileMigrate: {MaxOpenConns: 1, MaxIdleConns: 1, ConnMaxIdleTime: 2 * time.Minute, ConnMaxLifetime: time.Hour, PingTimeout: 5 * time.Second},
}

// RuntimeProfile picks the lambda profile inside AWS Lambda and the server profile otherwise.
func RuntimeProfile() Profile {
	if strings.TrimSpace(os.Getenv("AWS_LAMBDA_FUNCTION_NAME")) != "" {
		return ProfileLambda
	}
	return ProfileServer
}

// OptionsFor returns the defaults of p with ov applied. Unknown profiles use the server defaults.
func OptionsFor(p Profile, ov Overrides) Options {
	opts, ok := profiles[p]
	if !ok {
		p = ProfileServer
		opts = profiles[p]
	}
	opts.Profile = p
	if ov.MaxOpenConns > 0 {
		opts.MaxOpenConns = ov.MaxOpenConns
	}
	if ov.MaxIdleConns > 0 {
		opts.MaxIdleConns = ov.MaxIdleConns
	}
	if ov.ConnMaxLifetime > 0 {
		opts.ConnMaxLifetime = ov.ConnMaxLifetime
	}
	if ov.ConnMaxIdleTime > 0 {
		opts.ConnMaxIdleTime = ov.ConnMaxIdleTime
	}
	if ov.PingTimeout > 0 {
		opts.PingTimeout = ov.PingTimeout
	}
	if opts.MaxIdleConns > opts.MaxOpenConns {
		opts.MaxIdleConns = opts.MaxOpenConns
	}
	return opts
}

var openDB = sql.Open

// Connect opens a pgx-backed pool and pings it. Callers share the returned handle.
func Connect(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, ErrNoDatabaseURL
	}
	if opts.Profile == "" {
		opts = OptionsFor(ProfileServer, Overrides{})
	}

	pool, err := openDB("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pool.SetMaxOpenConns(opts.MaxOpenConns)
	pool.SetMaxIdleConns(opts.MaxIdleConns)
	pool.SetConnMaxLifetime(opts.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	telemetry.Info("db.connected", map[string]any{
		"profile":   opts.Profile,
		"max_open":  opts.MaxOpenConns,
		"max_idle":  opts.MaxIdleConns,
		"open_now":  pool.Stats().OpenConnections,
		"ping_wait": opts.PingTimeout.String(),
	})
	return pool, nil
}

var shared struct {
	mu sync.Mutex
	db *sql.DB
}

// Shared returns the process-wide pool, connecting on first use. A failed connect is not
// cached, so the next call tries again.
func Shared(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	if shared.db != nil {
		telemetry.Info("db.shared", map[string]any{"event": "reuse"})
		return shared.db, nil
	}
	pool, err := Connect(ctx, databaseURL, opts)
	if err != nil {
		return nil, err
	}
	shared.db = pool
	telemetry.Info("db.shared", map[string]any{"event": "cold_start"})
	return pool, nil
}
