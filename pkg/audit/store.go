package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Dialect selects SQL placeholder and type syntax
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DriverName returns the database/sql driver registered for the dialect
func (d Dialect) DriverName() string {
	if d == DialectSQLite {
		return "sqlite3"
	}
	return "pgx"
}

func (d Dialect) placeholder(n int) string {
	if d == DialectSQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// SQLStore persists audit records in the audit_log table
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore creates a store on an open database
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// OpenSQLStore opens the database for dialect and checks the connection
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}
	return NewSQLStore(db, dialect), nil
}

// Migrate ensures the audit_log table exists
func (s *SQLStore) Migrate(ctx context.Context) error {
	timestamp := "TIMESTAMPTZ"
	if s.dialect == DialectSQLite {
		timestamp = "TIMESTAMP"
	}

	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS audit_log (
	id VARCHAR(36) PRIMARY KEY,
	op VARCHAR(255) NOT NULL,
	resource_type VARCHAR(255) NOT NULL,
	resource_id TEXT,
	after_state TEXT,
	actor_id VARCHAR(255),
	tenant_id VARCHAR(255),
	request_id VARCHAR(255),
	created_at %s NOT NULL
)`, timestamp)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to initialize audit_log table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_audit_log_op_created_at ON audit_log(op, created_at)"); err != nil {
		return fmt.Errorf("failed to index audit_log table: %w", err)
	}
	return nil
}

// Write implements Sink
func (s *SQLStore) Write(ctx context.Context, rec *Record) error {
	var after sql.NullString
	if rec.After != nil {
		data, err := json.Marshal(rec.After)
		if err != nil {
			return fmt.Errorf("failed to encode audit after state: %w", err)
		}
		after = sql.NullString{String: string(data), Valid: true}
	}

	var resourceID sql.NullString
	if rec.ResourceID != nil {
		resourceID = sql.NullString{String: *rec.ResourceID, Valid: true}
	}

	placeholders := make([]string, 9)
	for i := range placeholders {
		placeholders[i] = s.dialect.placeholder(i + 1)
	}
	query := fmt.Sprintf(`
INSERT INTO audit_log (id, op, resource_type, resource_id, after_state, actor_id, tenant_id, request_id, created_at)
VALUES (%s)`, strings.Join(placeholders, ", "))

	_, err := s.db.ExecContext(ctx, query,
		rec.ID.String(), rec.Op, rec.ResourceType, resourceID, after,
		rec.ActorID, rec.TenantID, rec.RequestID, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// Recent returns the newest records, optionally restricted to one operation
func (s *SQLStore) Recent(ctx context.Context, op string, limit int) ([]*Record, error) {
	query := "SELECT id, op, resource_type, resource_id, after_state, actor_id, tenant_id, request_id, created_at FROM audit_log"
	var args []any
	if op != "" {
		query += " WHERE op = " + s.dialect.placeholder(1)
		args = append(args, op)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec := &Record{}
		var id string
		var resourceID, after, actorID, tenantID, requestID sql.NullString
		if err := rows.Scan(&id, &rec.Op, &rec.ResourceType, &resourceID, &after, &actorID, &tenantID, &requestID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if err := rec.ID.UnmarshalText([]byte(id)); err != nil {
			return nil, fmt.Errorf("invalid audit record id %q: %w", id, err)
		}
		if resourceID.Valid {
			v := resourceID.String
			rec.ResourceID = &v
		}
		if after.Valid {
			if err := json.Unmarshal([]byte(after.String), &rec.After); err != nil {
				return nil, fmt.Errorf("invalid audit after state: %w", err)
			}
		}
		rec.ActorID = actorID.String
		rec.TenantID = tenantID.String
		rec.RequestID = requestID.String
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}
	return records, nil
}

// Close closes the underlying database
func (s *SQLStore) Close() error {
	return s.db.Close()
}
