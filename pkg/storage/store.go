package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/sunup/pkg/config"
	"github.com/platinummonkey/sunup/pkg/observability"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// ErrDuplicate is returned when an insert or update violates a unique constraint.
var ErrDuplicate = errors.New("duplicate key")

// Open opens and pings a database connection pool
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPostgres
	}

	db, err := sql.Open(driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driver, err)
	}

	if driver == DriverSQLite {
		// A second connection to ":memory:" would see an empty database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}

	return db, nil
}

// Options configures a Store
type Options struct {
	Driver     string
	MaxRetries int
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Store runs units of work inside database transactions. Write transactions
// are serializable on PostgreSQL and are retried on serialization failures.
type Store struct {
	db         *sql.DB
	driver     string
	maxRetries int
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// New creates a Store over an open connection pool
func New(db *sql.DB, opts Options) *Store {
	if opts.Driver == "" {
		opts.Driver = DriverPostgres
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	return &Store{
		db:         db,
		driver:     opts.Driver,
		maxRetries: opts.MaxRetries,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
}

// DB returns the underlying connection pool
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the driver name the store was opened with
func (s *Store) Driver() string {
	return s.driver
}

// WithTx runs fn in a read-write transaction. fn may be invoked more than once
// when the transaction has to be retried, so it must not have side effects
// outside tx; use Tx.AfterCommit for those.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	return s.run(ctx, false, fn)
}

// View runs fn in a read-only transaction
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(tx *Tx) error) error {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		tx, err := s.runOnce(ctx, readOnly, fn)
		if err == nil {
			s.metrics.ObserveTx("commit", time.Since(start))
			tx.runAfterCommit()
			return nil
		}

		if IsRetryable(err) && attempt < s.maxRetries && ctx.Err() == nil {
			s.metrics.ObserveTxRetry()
			s.logger.WithFields(map[string]interface{}{
				"attempt": attempt + 1,
				"error":   err.Error(),
			}).Debug("Retrying transaction after serialization failure")
			continue
		}

		s.metrics.ObserveTx("rollback", time.Since(start))
		return err
	}
}

func (s *Store) runOnce(ctx context.Context, readOnly bool, fn func(tx *Tx) error) (_ *Tx, err error) {
	sqlTx, err := s.db.BeginTx(ctx, s.txOptions(readOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	tx := &Tx{q: sqlTx, driver: s.driver}

	committed := false
	defer func() {
		if !committed {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.WithError(rbErr).Warn("Failed to roll back transaction")
			}
		}
	}()

	if err := fn(tx); err != nil {
		return nil, err
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	return tx, nil
}

func (s *Store) txOptions(readOnly bool) *sql.TxOptions {
	if s.driver != DriverPostgres {
		return nil
	}
	if readOnly {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return &sql.TxOptions{Isolation: sql.LevelSerializable}
}

// IsRetryable reports whether err is a PostgreSQL serialization failure or
// deadlock that can be resolved by running the transaction again.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return true
		}
	}
	return false
}

// isUniqueViolation reports whether err is a unique constraint violation on
// either supported driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// wrapWriteErr maps unique violations to ErrDuplicate and wraps everything else.
func wrapWriteErr(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}
