package loginaudit

import (
	"context"
	"database/sql"
	"time"

	"github.com/MrEthical07/branchauth/internal/ids"
	"github.com/MrEthical07/branchauth/internal/pgerr"
)

var _ Store = (*PGStore)(nil)

// Schema creates the login_audit table.
const Schema = `
create table if not exists login_audit (
	id           text primary key,
	user_id      text,
	username     text not null,
	ip           text not null default '',
	user_agent   text not null default '',
	success      boolean not null,
	reason       text not null default '',
	session_id   text,
	attempted_at timestamptz not null,
	logout_at    timestamptz
);
create index if not exists login_audit_session_idx on login_audit (session_id) where session_id is not null;
`

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	db  *sql.DB
	ids *ids.Generator
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db, ids: ids.NewGenerator(nil)}
}

// EnsureSchema applies Schema.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return pgerr.Wrap(err)
	}
	return nil
}

func (s *PGStore) Append(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = s.ids.New(r.AttemptedAt)
	}
	_, err := s.db.ExecContext(ctx, `
		insert into login_audit (id, user_id, username, ip, user_agent, success, reason, session_id, attempted_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, nullIfEmpty(r.UserID), r.Username, r.IP, r.UserAgent, r.Success, r.Reason,
		nullIfEmpty(r.SessionID), r.AttemptedAt.UTC())
	if err != nil {
		return pgerr.Wrap(err)
	}
	return nil
}

func (s *PGStore) CloseSession(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `
		update login_audit set logout_at = $2
		where session_id = $1 and logout_at is null
	`, sessionID, at.UTC())
	if err != nil {
		return false, pgerr.Wrap(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
