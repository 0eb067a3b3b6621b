package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const defaultTable = "audit_logs"

// Repository writes audit logs.
type Repository struct {
	db    *sql.DB
	table string
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) (*Repository, error) {
	if db == nil {
		return nil, errors.New("audit repo: nil db")
	}
	return &Repository{db: db, table: defaultTable}, nil
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	entry = prepare(entry)
	var meta any
	if len(entry.Metadata) > 0 {
		meta = []byte(entry.Metadata)
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	id, actor, role, action, resource_type, resource_id,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)`, r.table), entry.ID, entry.Actor, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID,
		meta, entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit repo: insert: %w", err)
	}
	return nil
}
