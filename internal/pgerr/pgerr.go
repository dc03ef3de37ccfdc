// Package pgerr classifies PostgreSQL driver errors into the few kinds the
// stores act on.
package pgerr

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind is a coarse error class.
type Kind int

const (
	KindUnknown Kind = iota
	KindDuplicateKey
	KindForeignKey
	KindNotNull
	KindConnectivity
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	classConnectionFailure  = "08"
)

func (k Kind) String() string {
	switch k {
	case KindDuplicateKey:
		return "duplicate_key"
	case KindForeignKey:
		return "foreign_key"
	case KindNotNull:
		return "not_null"
	case KindConnectivity:
		return "connectivity"
	default:
		return "unknown"
	}
}

// Classify maps err to a Kind. Errors that are not *pgconn.PgError yield KindUnknown.
func Classify(err error) Kind {
	pgErr, ok := maybePgError(err)
	if !ok {
		return KindUnknown
	}
	switch {
	case pgErr.Code == codeUniqueViolation:
		return KindDuplicateKey
	case pgErr.Code == codeForeignKeyViolation:
		return KindForeignKey
	case pgErr.Code == codeNotNullViolation:
		return KindNotNull
	case strings.HasPrefix(pgErr.Code, classConnectionFailure):
		return KindConnectivity
	default:
		return KindUnknown
	}
}

// Error carries the classified Kind of a wrapped driver error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return "postgres " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns err as *Error when it is a PostgreSQL error, otherwise err
// unchanged.
func Wrap(err error) error {
	if _, ok := maybePgError(err); !ok {
		return err
	}
	return &Error{Kind: Classify(err), Err: err}
}

// KindOf returns the Kind carried by err, classifying raw driver errors too.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Classify(err)
}

// Constraint returns the violated constraint name, if any.
func Constraint(err error) string {
	if pgErr, ok := maybePgError(err); ok {
		return pgErr.ConstraintName
	}
	return ""
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
