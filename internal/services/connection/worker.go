package connection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"titan/internal/config"
	"titan/internal/logger"
	"titan/internal/models"
)

// DefaultConnectTimeout bounds a connect attempt when Options.Timeout is unset
const DefaultConnectTimeout = 15 * time.Second

// Options tune how a Worker opens its pool
type Options struct {
	Timeout time.Duration
	Pool    config.PoolConfig
	// Open defaults to sql.Open
	Open func(driverName, dsn string) (*sql.DB, error)
}

// Executor runs one connect attempt
type Executor interface {
	Execute(ctx context.Context) (*Session, error)
}

// Worker connects to the database described by one profile. It completes
// exactly once and never retries.
type Worker struct {
	profile *models.ConnectionProfile
	opts    Options
}

// NewWorker binds a worker to profile
func NewWorker(profile *models.ConnectionProfile, opts Options) *Worker {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultConnectTimeout
	}
	if opts.Open == nil {
		opts.Open = sql.Open
	}
	return &Worker{profile: profile, opts: opts}
}

// Factory returns a WorkerFactory producing Workers with opts
func Factory(opts Options) WorkerFactory {
	return func(profile *models.ConnectionProfile) Executor {
		return NewWorker(profile, opts)
	}
}

// Execute opens a pool, verifies it with a ping and reads the server version
func (w *Worker) Execute(ctx context.Context) (*Session, error) {
	p := w.profile
	if p == nil {
		return nil, &ConnectError{Kind: ErrInvalidProfile, Err: errors.New("no profile")}
	}

	spec, ok := lookupDriver(p.Driver)
	if !ok {
		return nil, w.fail(ErrInvalidProfile, "", fmt.Errorf("unsupported driver %q", p.Driver))
	}
	addr := address(p, spec)

	if err := w.checkTarget(); err != nil {
		return nil, w.fail(ErrInvalidProfile, addr, err)
	}
	if p.Driver == models.DriverSQLite {
		if _, err := os.Stat(p.Database); err != nil {
			return nil, w.fail(ErrUnreachable, addr, err)
		}
	}

	log := logger.With("profile", p.Name, "driver", spec.sqlName, "address", addr)
	log.Debug("Connecting to database", "timeout", w.opts.Timeout)
	start := time.Now()

	db, err := w.opts.Open(spec.sqlName, spec.dsn(p, w.opts.Timeout))
	if err != nil {
		return nil, w.fail(ErrInvalidProfile, addr, err)
	}
	w.configurePool(db)

	ctx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		kind := classify(err)
		log.Warn("Database ping failed", "kind", ErrorKind(kind), "error", err)
		return nil, w.fail(kind, addr, err)
	}

	var version string
	if err := db.QueryRowContext(ctx, spec.versionQuery).Scan(&version); err != nil {
		db.Close()
		return nil, w.fail(classify(err), addr, fmt.Errorf("failed to query server version: %w", err))
	}

	session := &Session{
		ID:            uuid.New().String(),
		Profile:       p.Redacted(),
		Driver:        spec.sqlName,
		ServerVersion: version,
		ConnectedAt:   time.Now(),
		db:            db,
	}
	log.Info("Connected to database", "session", session.ID, "duration", time.Since(start))
	return session, nil
}

func (w *Worker) checkTarget() error {
	if w.profile.Driver == models.DriverSQLite {
		if w.profile.Database == "" {
			return errors.New("sqlite profile needs a database file path")
		}
		return nil
	}
	if w.profile.Host == "" {
		return errors.New("host is required")
	}
	if w.profile.Port < 0 || w.profile.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", w.profile.Port)
	}
	return nil
}

func (w *Worker) configurePool(db *sql.DB) {
	pool := w.opts.Pool
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
}

func (w *Worker) fail(kind error, addr string, err error) error {
	return &ConnectError{Kind: kind, Profile: w.profile.Name, Address: addr, Err: err}
}
