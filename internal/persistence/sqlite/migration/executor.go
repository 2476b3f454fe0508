package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Executor applies migrations and maintains the schema_migrations table.
type Executor struct {
	db  *sql.DB
	now func() time.Time
}

// NewExecutor returns an executor bound to db.
func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db, now: time.Now}
}

// InitializeVersionTable creates schema_migrations when missing.
func (e *Executor) InitializeVersionTable(ctx context.Context) error {
	const stmt = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			execution_time_ms INTEGER NOT NULL DEFAULT 0
		)`
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return newMigrationError("", "", "create schema_migrations table", err)
	}
	return nil
}

// Apply runs every statement of m and records it in a single transaction.
func (e *Executor) Apply(ctx context.Context, m Migration) (err error) {
	statements := splitStatements(m.SQL)
	if len(statements) == 0 {
		return newMigrationError(m.Version, m.FilePath, "parse SQL",
			fmt.Errorf("%w: no statements", ErrInvalidMigrationFile))
	}

	started := e.now()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return newMigrationError(m.Version, m.FilePath, "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range statements {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			err = newMigrationError(m.Version, m.FilePath, fmt.Sprintf("execute statement %d", i+1),
				errors.Join(ErrMigrationFailed, execErr))
			return err
		}
	}

	elapsed := e.now().Sub(started)
	if _, execErr := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`,
		m.Version, e.now().UTC().Format(time.RFC3339Nano), m.Checksum, elapsed.Milliseconds(),
	); execErr != nil {
		err = newMigrationError(m.Version, m.FilePath, "record migration", execErr)
		return err
	}

	if commitErr := tx.Commit(); commitErr != nil {
		err = newMigrationError(m.Version, m.FilePath, "commit transaction", commitErr)
		return err
	}
	return nil
}

// Applied lists recorded migrations ordered by version.
func (e *Executor) Applied(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT version, applied_at, checksum, execution_time_ms FROM schema_migrations ORDER BY CAST(version AS INTEGER)`)
	if err != nil {
		return nil, newMigrationError("", "", "list applied migrations", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			rec       AppliedMigration
			appliedAt string
			elapsedMs int64
		)
		if err := rows.Scan(&rec.Version, &appliedAt, &rec.Checksum, &elapsedMs); err != nil {
			return nil, newMigrationError("", "", "scan applied migration", err)
		}
		if rec.AppliedAt, err = time.Parse(time.RFC3339Nano, appliedAt); err != nil {
			return nil, newMigrationError(rec.Version, "", "parse applied_at", err)
		}
		rec.ExecutionTime = time.Duration(elapsedMs) * time.Millisecond
		applied = append(applied, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, newMigrationError("", "", "iterate applied migrations", err)
	}
	return applied, nil
}

// splitStatements splits on semicolons and drops comment-only lines.
// Migration files must not contain semicolons inside string literals or triggers.
func splitStatements(script string) []string {
	var statements []string
	for _, chunk := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(chunk, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "--") {
				continue
			}
			lines = append(lines, trimmed)
		}
		if len(lines) > 0 {
			statements = append(statements, strings.Join(lines, "\n"))
		}
	}
	return statements
}
