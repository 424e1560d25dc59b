package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// SQLiteStore persists invocations, audit entries, and pending
// confirmations in a single SQLite database. Transition commits the
// status change and its audit entry in one transaction.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug().Str("path", path).Msg("Invocation store opened")
	return s, nil
}

// initSchema creates database tables
func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS invocations (
			id TEXT PRIMARY KEY,
			tool_name TEXT NOT NULL,
			raw_arguments TEXT,
			args TEXT,
			session_id TEXT NOT NULL,
			ticket_id TEXT,
			actor TEXT NOT NULL,
			requested_at INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_invocations_session ON invocations(session_id);
		CREATE INDEX IF NOT EXISTS idx_invocations_status ON invocations(status);

		CREATE TABLE IF NOT EXISTS audit_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			invocation_id TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			actor TEXT NOT NULL,
			reason TEXT NOT NULL,
			at INTEGER NOT NULL,
			FOREIGN KEY (invocation_id) REFERENCES invocations(id)
		);
		CREATE INDEX IF NOT EXISTS idx_audit_invocation ON audit_entries(invocation_id);

		CREATE TABLE IF NOT EXISTS pending_confirmations (
			id TEXT PRIMARY KEY,
			invocation_id TEXT NOT NULL UNIQUE,
			requested_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			reviewer TEXT,
			decision TEXT,
			resolved_at INTEGER,
			FOREIGN KEY (invocation_id) REFERENCES invocations(id)
		);
		CREATE INDEX IF NOT EXISTS idx_pending_expires ON pending_confirmations(expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateInvocation persists a new invocation together with its
// creation audit entry.
func (s *SQLiteStore) CreateInvocation(ctx context.Context, inv *Invocation) error {
	rawJSON, err := marshalJSON(inv.RawArguments)
	if err != nil {
		return fmt.Errorf("failed to encode raw arguments: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invocations
			(id, tool_name, raw_arguments, args, session_id, ticket_id, actor, requested_at, status, created_at, updated_at)
		VALUES (?, ?, ?, NULL, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.ToolName, rawJSON,
		inv.Context.SessionID, inv.Context.TicketID, inv.Context.Actor,
		inv.Context.Timestamp.UnixNano(),
		string(inv.Status), inv.CreatedAt.UnixNano(), inv.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert invocation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_entries (invocation_id, from_status, to_status, actor, reason, at)
		VALUES (?, '', ?, 'agent', 'invocation received', ?)`,
		inv.ID, string(inv.Status), inv.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return tx.Commit()
}

// GetInvocation loads one invocation by ID
func (s *SQLiteStore) GetInvocation(ctx context.Context, id string) (*Invocation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tool_name, raw_arguments, args, session_id, ticket_id, actor, requested_at, status, created_at, updated_at
		FROM invocations WHERE id = ?`, id)
	return scanInvocation(row)
}

// SetArgs stores the normalized arguments produced by validation
func (s *SQLiteStore) SetArgs(ctx context.Context, id string, args map[string]interface{}) error {
	argsJSON, err := marshalJSON(args)
	if err != nil {
		return fmt.Errorf("failed to encode args: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE invocations SET args = ? WHERE id = ?`, argsJSON, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvocationNotFound
	}
	return nil
}

// Transition moves an invocation from one status to another and
// appends the audit entry, both in the same transaction. The update
// is conditional on the expected current status so a concurrent
// transition loses with ErrStaleTransition instead of clobbering.
func (s *SQLiteStore) Transition(ctx context.Context, id string, from, to Status, actor, reason string, at time.Time) (*Invocation, error) {
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE invocations SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), at.UnixNano(), id, string(from),
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Either the invocation is missing or a concurrent
		// transition already changed its status.
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM invocations WHERE id = ?`, id).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrInvocationNotFound
			}
			return nil, err
		}
		return nil, fmt.Errorf("%w: invocation %s is no longer %s", ErrStaleTransition, id, from)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_entries (invocation_id, from_status, to_status, actor, reason, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(from), string(to), actor, reason, at.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert audit entry: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, tool_name, raw_arguments, args, session_id, ticket_id, actor, requested_at, status, created_at, updated_at
		FROM invocations WHERE id = ?`, id)
	inv, err := scanInvocation(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return inv, nil
}

// AuditTrail returns an invocation's audit entries in commit order
func (s *SQLiteStore) AuditTrail(ctx context.Context, id string) ([]AuditEntry, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM invocations WHERE id = ?`, id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvocationNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT invocation_id, from_status, to_status, actor, reason, at
		FROM audit_entries WHERE invocation_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var from, to string
		var at int64
		if err := rows.Scan(&e.InvocationID, &from, &to, &e.Actor, &e.Reason, &at); err != nil {
			return nil, err
		}
		e.FromStatus = Status(from)
		e.ToStatus = Status(to)
		e.Timestamp = time.Unix(0, at).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CreatePendingConfirmation records a confirmation request
func (s *SQLiteStore) CreatePendingConfirmation(ctx context.Context, pc *PendingConfirmation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_confirmations (id, invocation_id, requested_at, expires_at)
		VALUES (?, ?, ?, ?)`,
		pc.ID, pc.InvocationID, pc.RequestedAt.UnixNano(), pc.ExpiresAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConfirmationExists
		}
		return err
	}
	return nil
}

// GetPendingByInvocation loads the confirmation attached to an invocation
func (s *SQLiteStore) GetPendingByInvocation(ctx context.Context, invocationID string) (*PendingConfirmation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, invocation_id, requested_at, expires_at, reviewer, decision, resolved_at
		FROM pending_confirmations WHERE invocation_id = ?`, invocationID)
	return scanPending(row)
}

// ResolvePending records the reviewer's decision on an open
// confirmation. Resolving an already-resolved confirmation returns
// ErrConfirmationResolved.
func (s *SQLiteStore) ResolvePending(ctx context.Context, invocationID, reviewer string, decision ConfirmationDecision, at time.Time) (*PendingConfirmation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE pending_confirmations
		SET reviewer = ?, decision = ?, resolved_at = ?
		WHERE invocation_id = ? AND resolved_at IS NULL`,
		reviewer, string(decision), at.UnixNano(), invocationID,
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		row := tx.QueryRowContext(ctx, `
			SELECT id, invocation_id, requested_at, expires_at, reviewer, decision, resolved_at
			FROM pending_confirmations WHERE invocation_id = ?`, invocationID)
		if _, err := scanPending(row); err != nil {
			return nil, err
		}
		return nil, ErrConfirmationResolved
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, invocation_id, requested_at, expires_at, reviewer, decision, resolved_at
		FROM pending_confirmations WHERE invocation_id = ?`, invocationID)
	pc, err := scanPending(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return pc, nil
}

// ListExpiredPending returns open confirmations whose deadline has passed
func (s *SQLiteStore) ListExpiredPending(ctx context.Context, now time.Time) ([]*PendingConfirmation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invocation_id, requested_at, expires_at, reviewer, decision, resolved_at
		FROM pending_confirmations
		WHERE resolved_at IS NULL AND expires_at <= ?
		ORDER BY expires_at`, now.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PendingConfirmation
	for rows.Next() {
		pc, err := scanPendingRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvocation(row rowScanner) (*Invocation, error) {
	var inv Invocation
	var rawJSON, argsJSON sql.NullString
	var ticketID sql.NullString
	var status string
	var requestedAt, createdAt, updatedAt int64

	err := row.Scan(
		&inv.ID, &inv.ToolName, &rawJSON, &argsJSON,
		&inv.Context.SessionID, &ticketID, &inv.Context.Actor,
		&requestedAt, &status, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvocationNotFound
		}
		return nil, err
	}

	inv.Context.TicketID = ticketID.String
	inv.Context.Timestamp = time.Unix(0, requestedAt).UTC()
	inv.Status = Status(status)
	inv.CreatedAt = time.Unix(0, createdAt).UTC()
	inv.UpdatedAt = time.Unix(0, updatedAt).UTC()

	if rawJSON.Valid && rawJSON.String != "" {
		var raw interface{}
		if err := json.Unmarshal([]byte(rawJSON.String), &raw); err != nil {
			return nil, fmt.Errorf("failed to decode raw arguments: %w", err)
		}
		inv.RawArguments = raw
	}
	if argsJSON.Valid && argsJSON.String != "" {
		if err := json.Unmarshal([]byte(argsJSON.String), &inv.Args); err != nil {
			return nil, fmt.Errorf("failed to decode args: %w", err)
		}
	}

	return &inv, nil
}

func scanPending(row rowScanner) (*PendingConfirmation, error) {
	pc, err := scanPendingRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfirmationNotFound
		}
		return nil, err
	}
	return pc, nil
}

func scanPendingRows(row rowScanner) (*PendingConfirmation, error) {
	var pc PendingConfirmation
	var reviewer, decision sql.NullString
	var requestedAt, expiresAt int64
	var resolvedAt sql.NullInt64

	err := row.Scan(&pc.ID, &pc.InvocationID, &requestedAt, &expiresAt, &reviewer, &decision, &resolvedAt)
	if err != nil {
		return nil, err
	}

	pc.RequestedAt = time.Unix(0, requestedAt).UTC()
	pc.ExpiresAt = time.Unix(0, expiresAt).UTC()
	pc.Reviewer = reviewer.String
	pc.Decision = ConfirmationDecision(decision.String)
	if resolvedAt.Valid {
		t := time.Unix(0, resolvedAt.Int64).UTC()
		pc.ResolvedAt = &t
	}

	return &pc, nil
}

func marshalJSON(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
