// Package store persists users, Google tokens, integration connections, tool
// permissions and pending actions in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/teemow/inboxgate/internal/permission"
)

// SQLiteStore implements the permission stores and the Google token store.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ permission.ManagerStore = (*SQLiteStore)(nil)
	_ permission.LedgerStore  = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens dsn and applies the schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withConnParams(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to an in-memory database is a separate database.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// withConnParams adds per-connection settings so every pooled connection
// enforces foreign keys and waits on locks.
func withConnParams(dsn string) string {
	var params []string
	if !strings.Contains(dsn, "_foreign_keys") && !strings.Contains(dsn, "_fk") {
		params = append(params, "_foreign_keys=on")
	}
	if !strings.Contains(dsn, "_busy_timeout") && !strings.Contains(dsn, "_timeout") {
		params = append(params, "_busy_timeout=5000")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			email TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS google_tokens (
			user_id TEXT PRIMARY KEY,
			access_token TEXT NOT NULL,
			refresh_token TEXT,
			token_type TEXT,
			expiry INTEGER,
			updated_at INTEGER NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS user_integrations (
			user_id TEXT NOT NULL,
			integration_name TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, integration_name),
			FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS user_tools (
			user_id TEXT NOT NULL,
			integration_name TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			state TEXT NOT NULL CHECK (state IN ('enabled', 'verify', 'disabled')),
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, integration_name, tool_name),
			FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS pending_actions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			integration_name TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			parameters TEXT NOT NULL,
			status TEXT NOT NULL,
			result TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_actions_user_status ON pending_actions(user_id, status, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_actions_status_created ON pending_actions(status, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureUser creates the user if missing. A non-empty email replaces the stored one.
func (s *SQLiteStore) EnsureUser(ctx context.Context, userID, email string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, email, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET email = COALESCE(excluded.email, users.email)`,
		userID, nullString(email), toMillis(time.Now()))
	return err
}

// UserEmail returns the stored email for userID, or "" when unknown.
func (s *SQLiteStore) UserEmail(ctx context.Context, userID string) (string, error) {
	var email sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT email FROM users WHERE user_id = ?`, userID).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return email.String, nil
}

func (s *SQLiteStore) UpsertConnection(ctx context.Context, userID, integration string, status permission.ConnectionStatus, at time.Time) (*permission.Connection, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_integrations (user_id, integration_name, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, integration_name) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		userID, integration, status, toMillis(at), toMillis(at))
	if err != nil {
		return nil, err
	}
	return s.GetConnection(ctx, userID, integration)
}

func (s *SQLiteStore) GetConnection(ctx context.Context, userID, integration string) (*permission.Connection, error) {
	var c permission.Connection
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, integration_name, status, created_at, updated_at
		 FROM user_integrations WHERE user_id = ? AND integration_name = ?`,
		userID, integration).Scan(&c.UserID, &c.Integration, &c.Status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}

func (s *SQLiteStore) ListConnections(ctx context.Context, userID string) ([]permission.Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, integration_name, status, created_at, updated_at
		 FROM user_integrations WHERE user_id = ? ORDER BY integration_name`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []permission.Connection
	for rows.Next() {
		var c permission.Connection
		var created, updated int64
		if err := rows.Scan(&c.UserID, &c.Integration, &c.Status, &created, &updated); err != nil {
			return nil, err
		}
		c.CreatedAt = fromMillis(created)
		c.UpdatedAt = fromMillis(updated)
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

func (s *SQLiteStore) GetToolPermission(ctx context.Context, userID, integration, tool string) (*permission.ToolPermission, error) {
	var p permission.ToolPermission
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, integration_name, tool_name, state, created_at, updated_at
		 FROM user_tools WHERE user_id = ? AND integration_name = ? AND tool_name = ?`,
		userID, integration, tool).Scan(&p.UserID, &p.Integration, &p.Tool, &p.State, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

func (s *SQLiteStore) ListToolPermissions(ctx context.Context, userID, integration string) ([]permission.ToolPermission, error) {
	query := `SELECT user_id, integration_name, tool_name, state, created_at, updated_at
		FROM user_tools WHERE user_id = ?`
	args := []any{userID}
	if integration != "" {
		query += ` AND integration_name = ?`
		args = append(args, integration)
	}
	query += ` ORDER BY integration_name, tool_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []permission.ToolPermission
	for rows.Next() {
		var p permission.ToolPermission
		var created, updated int64
		if err := rows.Scan(&p.UserID, &p.Integration, &p.Tool, &p.State, &created, &updated); err != nil {
			return nil, err
		}
		p.CreatedAt = fromMillis(created)
		p.UpdatedAt = fromMillis(updated)
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *SQLiteStore) CreateToolPermission(ctx context.Context, p permission.ToolPermission) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_tools (user_id, integration_name, tool_name, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, integration_name, tool_name) DO NOTHING`,
		p.UserID, p.Integration, p.Tool, p.State, toMillis(p.CreatedAt), toMillis(p.UpdatedAt))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQLiteStore) UpsertToolPermission(ctx context.Context, p permission.ToolPermission) (*permission.ToolPermission, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_tools (user_id, integration_name, tool_name, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, integration_name, tool_name) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		p.UserID, p.Integration, p.Tool, p.State, toMillis(p.CreatedAt), toMillis(p.UpdatedAt))
	if err != nil {
		return nil, err
	}
	return s.GetToolPermission(ctx, p.UserID, p.Integration, p.Tool)
}

const pendingColumns = `id, user_id, integration_name, tool_name, parameters, status, result, created_at, updated_at`

func (s *SQLiteStore) CreatePendingAction(ctx context.Context, a *permission.PendingAction) error {
	params, err := encodeJSON(a.Params)
	if err != nil {
		return err
	}
	if err := s.EnsureUser(ctx, a.UserID, ""); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_actions (`+pendingColumns+`) VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		a.ID, a.UserID, a.Integration, a.Tool, params, a.Status, toMillis(a.CreatedAt), toMillis(a.UpdatedAt))
	return err
}

func (s *SQLiteStore) GetPendingAction(ctx context.Context, id string) (*permission.PendingAction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_actions WHERE id = ?`, id)
	a, err := scanPendingAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteStore) ListPendingActions(ctx context.Context, userID string, status permission.Status) ([]permission.PendingAction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_actions WHERE user_id = ? AND status = ? ORDER BY seq`,
		userID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []permission.PendingAction
	for rows.Next() {
		a, err := scanPendingAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, *a)
	}
	return actions, rows.Err()
}

func (s *SQLiteStore) TransitionPendingAction(ctx context.Context, id string, from, to permission.Status, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_actions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, toMillis(at), id, from)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQLiteStore) SetPendingActionResult(ctx context.Context, id string, result map[string]any, at time.Time) (bool, error) {
	encoded, err := encodeJSON(result)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_actions SET result = ?, updated_at = ? WHERE id = ? AND status = ? AND result IS NULL`,
		encoded, toMillis(at), id, permission.StatusApproved)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQLiteStore) ExpirePendingActions(ctx context.Context, cutoff, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_actions SET status = ?, updated_at = ? WHERE status = ? AND created_at < ?`,
		permission.StatusExpired, toMillis(at), permission.StatusPending, toMillis(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPendingAction(row scanner) (*permission.PendingAction, error) {
	var a permission.PendingAction
	var params string
	var result sql.NullString
	var created, updated int64
	if err := row.Scan(&a.ID, &a.UserID, &a.Integration, &a.Tool, &params, &a.Status, &result, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &a.Params); err != nil {
		return nil, fmt.Errorf("failed to decode parameters of %s: %w", a.ID, err)
	}
	if result.Valid {
		if err := json.Unmarshal([]byte(result.String), &a.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result of %s: %w", a.ID, err)
		}
	}
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	return &a, nil
}

func encodeJSON(v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json: %w", err)
	}
	return string(data), nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
