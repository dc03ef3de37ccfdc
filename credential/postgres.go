package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/branchauth/internal/pgerr"
)

var _ Store = (*PGStore)(nil)

// Schema creates the tables PGStore expects.
const Schema = `
create table if not exists credentials (
	id                    text primary key,
	username              text not null,
	email                 text not null default '',
	given_name            text not null default '',
	family_name           text not null default '',
	password_hash         text not null,
	branch_id             text not null default '',
	active                boolean not null default true,
	locked                boolean not null default false,
	failed_login_count    integer not null default 0,
	first_failed_login_at timestamptz,
	created_at            timestamptz not null default now(),
	updated_at            timestamptz not null default now()
);
create unique index if not exists credentials_username_key on credentials (lower(username));
create table if not exists credential_roles (
	user_id   text not null references credentials(id) on delete cascade,
	role_code text not null,
	primary key (user_id, role_code)
);
`

const selectCredential = `
	select c.id, c.username, c.email, c.given_name, c.family_name, c.password_hash,
	       c.branch_id, c.active, c.locked, c.failed_login_count, c.first_failed_login_at,
	       coalesce(string_agg(r.role_code, ',' order by r.role_code), '')
	from credentials c
	left join credential_roles r on r.user_id = c.id
`

// PGStore implements Store on PostgreSQL through database/sql.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps db, which should be opened with the pgx driver.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// EnsureSchema applies Schema.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return pgerr.Wrap(err)
	}
	return nil
}

func (s *PGStore) GetByUsername(ctx context.Context, username string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		selectCredential+`where lower(c.username) = lower($1) group by c.id`,
		strings.TrimSpace(username),
	)
	return scanCredential(row)
}

func (s *PGStore) GetByID(ctx context.Context, userID string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx, selectCredential+`where c.id = $1 group by c.id`, userID)
	return scanCredential(row)
}

func scanCredential(row *sql.Row) (*Credential, error) {
	var (
		c           Credential
		firstFailed sql.NullTime
		roles       string
	)
	err := row.Scan(
		&c.ID, &c.Username, &c.Email, &c.GivenName, &c.FamilyName, &c.PasswordHash,
		&c.BranchID, &c.Active, &c.Locked, &c.FailedLoginCount, &firstFailed, &roles,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, pgerr.Wrap(err)
	}
	if firstFailed.Valid {
		t := firstFailed.Time
		c.FirstFailedLoginAt = &t
	}
	if roles != "" {
		c.Roles = strings.Split(roles, ",")
	}
	return &c, nil
}

// Save upserts c and replaces its role set in one transaction. An existing
// lock and failure streak are never cleared by Save; only ResetFailedLogins
// and Unlock lower them.
func (s *PGStore) Save(ctx context.Context, c *Credential) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pgerr.Wrap(err)
	}
	defer func() { _ = tx.Rollback() }()

	var firstFailed sql.NullTime
	if c.FirstFailedLoginAt != nil {
		firstFailed = sql.NullTime{Time: *c.FirstFailedLoginAt, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		insert into credentials (id, username, email, given_name, family_name, password_hash,
		                         branch_id, active, locked, failed_login_count, first_failed_login_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		on conflict (id) do update set
			username = excluded.username,
			email = excluded.email,
			given_name = excluded.given_name,
			family_name = excluded.family_name,
			password_hash = excluded.password_hash,
			branch_id = excluded.branch_id,
			active = excluded.active,
			locked = credentials.locked or excluded.locked,
			failed_login_count = greatest(credentials.failed_login_count, excluded.failed_login_count),
			first_failed_login_at = coalesce(credentials.first_failed_login_at, excluded.first_failed_login_at),
			updated_at = now()
	`, c.ID, c.Username, c.Email, c.GivenName, c.FamilyName, c.PasswordHash,
		c.BranchID, c.Active, c.Locked, c.FailedLoginCount, firstFailed)
	if err != nil {
		if pgerr.KindOf(err) == pgerr.KindDuplicateKey {
			return ErrConflict
		}
		return pgerr.Wrap(err)
	}

	if _, err := tx.ExecContext(ctx, `delete from credential_roles where user_id = $1`, c.ID); err != nil {
		return pgerr.Wrap(err)
	}
	for _, role := range c.Roles {
		if _, err := tx.ExecContext(ctx,
			`insert into credential_roles (user_id, role_code) values ($1, $2)`, c.ID, role,
		); err != nil {
			return pgerr.Wrap(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return pgerr.Wrap(err)
	}
	return nil
}

func (s *PGStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return s.execOne(ctx,
		`update credentials set password_hash = $2, updated_at = now() where id = $1`,
		userID, hash,
	)
}

func (s *PGStore) IncrementFailedLogins(ctx context.Context, userID string, at time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		update credentials
		set failed_login_count = failed_login_count + 1,
		    first_failed_login_at = coalesce(first_failed_login_at, $2),
		    updated_at = now()
		where id = $1
		returning failed_login_count
	`, userID, at.UTC()).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, pgerr.Wrap(err)
	}
	return count, nil
}

func (s *PGStore) LockAccount(ctx context.Context, userID string) error {
	return s.execOne(ctx,
		`update credentials set locked = true, updated_at = now() where id = $1`,
		userID,
	)
}

func (s *PGStore) ResetFailedLogins(ctx context.Context, userID string) error {
	return s.execOne(ctx, `
		update credentials
		set failed_login_count = 0, first_failed_login_at = null, updated_at = now()
		where id = $1
	`, userID)
}

func (s *PGStore) Unlock(ctx context.Context, userID string) error {
	return s.execOne(ctx, `
		update credentials
		set locked = false, failed_login_count = 0, first_failed_login_at = null, updated_at = now()
		where id = $1
	`, userID)
}

func (s *PGStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return pgerr.Wrap(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}
