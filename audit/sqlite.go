package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	automation "github.com/livingstone45/stayspot-sub007"
)

// SQLiteLog persists audit entries in SQLite. Callers open the *sql.DB with
// a driver of their choice (the daemon registers modernc.org/sqlite).
type SQLiteLog struct {
	db    *sql.DB
	table string

	schemaOnce sync.Once
	schemaErr  error
}

// NewSQLiteLog builds a log using the given DB and table name.
func NewSQLiteLog(db *sql.DB, table string) *SQLiteLog {
	if table == "" {
		table = "audit_log"
	}
	return &SQLiteLog{db: db, table: table}
}

func (l *SQLiteLog) ensureSchema(ctx context.Context) error {
	l.schemaOnce.Do(func() {
		q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			execution_id TEXT NOT NULL DEFAULT '',
			actor_id TEXT NOT NULL DEFAULT '',
			request_id TEXT NOT NULL DEFAULT '',
			ip_address TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			details TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`, l.table)
		_, l.schemaErr = l.db.ExecContext(ctx, q)
		if l.schemaErr == nil {
			idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_execution ON %s (execution_id)`, l.table, l.table)
			_, l.schemaErr = l.db.ExecContext(ctx, idx)
		}
	})
	return l.schemaErr
}

func (l *SQLiteLog) Append(ctx context.Context, entry Entry) error {
	if l == nil || l.db == nil {
		return errors.New("sqlite audit log not configured")
	}
	if err := l.ensureSchema(ctx); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	var details string
	if len(entry.Details) > 0 {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		details = string(data)
	}
	q := fmt.Sprintf(`INSERT INTO %s
		(action, entity_type, entity_id, execution_id, actor_id, request_id, ip_address, user_agent, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, l.table)
	_, err := l.db.ExecContext(ctx, q,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.ExecutionID,
		entry.Context.ActorID,
		entry.Context.RequestID,
		entry.Context.IPAddress,
		entry.Context.UserAgent,
		details,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (l *SQLiteLog) ByExecution(ctx context.Context, executionID string) ([]Entry, error) {
	executionID = strings.TrimSpace(executionID)
	if executionID == "" {
		return nil, nil
	}
	return l.query(ctx, "execution_id = ?", executionID, 0)
}

func (l *SQLiteLog) ByAction(ctx context.Context, action string, limit int) ([]Entry, error) {
	return l.query(ctx, "action = ?", action, limit)
}

func (l *SQLiteLog) query(ctx context.Context, where string, arg any, limit int) ([]Entry, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("sqlite audit log not configured")
	}
	if err := l.ensureSchema(ctx); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT id, action, entity_type, entity_id, execution_id, actor_id, request_id, ip_address, user_agent, details, created_at
		FROM %s WHERE %s ORDER BY id ASC`, l.table, where)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := l.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var details string
		var createdAt string
		if err := rows.Scan(
			&e.ID,
			&e.Action,
			&e.EntityType,
			&e.EntityID,
			&e.ExecutionID,
			&e.Context.ActorID,
			&e.Context.RequestID,
			&e.Context.IPAddress,
			&e.Context.UserAgent,
			&details,
			&createdAt,
		); err != nil {
			return nil, err
		}
		if details != "" {
			var p automation.Payload
			if err := json.Unmarshal([]byte(details), &p); err == nil {
				e.Details = p
			}
		}
		if ts, perr := time.Parse(time.RFC3339Nano, createdAt); perr == nil {
			e.CreatedAt = ts
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
