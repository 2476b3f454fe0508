package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/hall-booking/internal/backoff"
	"github.com/example/hall-booking/internal/persistence"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// defaultPragmas are appended to every DSN that does not set them itself.
var defaultPragmas = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
	"_txlock=immediate",
}

// ConnectionPool manages SQLite database connections with transaction support.
type ConnectionPool struct {
	db     *sql.DB
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewConnectionPool opens dsn with the pure-Go driver and verifies the connection.
func NewConnectionPool(ctx context.Context, dsn string) (*ConnectionPool, error) {
	db, err := sql.Open(driverName, withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if isMemoryDSN(dsn) {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	mapper := NewErrorMapper()
	return &ConnectionPool{db: db, mapper: mapper, retry: NewRetryHelper(DefaultRetryPolicy(), mapper)}, nil
}

// DB returns the underlying database handle.
func (cp *ConnectionPool) DB() *sql.DB {
	return cp.db
}

// Close closes the pool.
func (cp *ConnectionPool) Close() error {
	if cp == nil || cp.db == nil {
		return nil
	}
	return cp.db.Close()
}

// Ping tests the database connection.
func (cp *ConnectionPool) Ping(ctx context.Context) error {
	return cp.db.PingContext(ctx)
}

// TransactionFunc represents a function that executes within a transaction.
type TransactionFunc func(tx *sql.Tx) error

// WithTransaction runs fn inside a write transaction. The DSN's _txlock=immediate
// takes the write lock at BEGIN so concurrent writers serialize instead of
// failing on lock upgrade.
func (cp *ConnectionPool) WithTransaction(ctx context.Context, fn TransactionFunc) (err error) {
	tx, err := cp.db.BeginTx(ctx, nil)
	if err != nil {
		return cp.mapper.MapError(fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return cp.mapper.MapError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// ReadWithRetry runs an idempotent read, retrying while the database reports busy.
func (cp *ConnectionPool) ReadWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return cp.retry.WithRetry(ctx, fn)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ErrorMapper maps SQLite errors to persistence layer errors.
type ErrorMapper struct{}

// NewErrorMapper creates a new error mapper.
func NewErrorMapper() *ErrorMapper {
	return &ErrorMapper{}
}

// MapError wraps driver errors with the matching persistence sentinel.
func (em *ErrorMapper) MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", persistence.ErrForeignKeyViolation, err)
	case strings.Contains(msg, "CHECK constraint failed"), strings.Contains(msg, "NOT NULL constraint failed"):
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "SQLITE_BUSY"), strings.Contains(msg, "database table is locked"):
		return fmt.Errorf("%w: %v", persistence.ErrBusy, err)
	}
	return err
}

// DefaultRetryPolicy returns the busy-retry policy for reads.
func DefaultRetryPolicy() backoff.Policy {
	return backoff.Policy{Attempts: 4, Initial: 50 * time.Millisecond, Max: time.Second, Factor: 2}
}

// RetryHelper retries idempotent reads that fail with ErrBusy.
type RetryHelper struct {
	policy backoff.Policy
	mapper *ErrorMapper
}

// NewRetryHelper creates a retry helper.
func NewRetryHelper(policy backoff.Policy, mapper *ErrorMapper) *RetryHelper {
	if mapper == nil {
		mapper = NewErrorMapper()
	}
	return &RetryHelper{policy: policy, mapper: mapper}
}

// WithRetry executes fn, mapping its error and retrying while the database is busy.
func (rh *RetryHelper) WithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return rh.policy.Retry(ctx, isRetryableError, func(ctx context.Context) error {
		return rh.mapper.MapError(fn(ctx))
	})
}

func isRetryableError(err error) bool {
	return errors.Is(err, persistence.ErrBusy)
}

func withPragmas(dsn string) string {
	if dsn == "" {
		dsn = "file:hallbooking.db"
	}
	var missing []string
	for _, p := range defaultPragmas {
		key := p
		if i := strings.Index(p, "("); i >= 0 {
			key = p[:i+1]
		} else if i := strings.Index(p, "="); i >= 0 {
			key = p[:i+1]
		}
		if strings.Contains(dsn, key) {
			continue
		}
		if isMemoryDSN(dsn) && strings.Contains(p, "journal_mode") {
			continue
		}
		missing = append(missing, p)
	}
	if len(missing) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(missing, "&")
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
