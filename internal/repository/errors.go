package repository

import (
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xenking/epicerie/internal/domain/apperr"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNumericOutOfRange   = "22003"
)

// classify attaches an apperr kind to a database error.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &apperr.Error{Kind: apperr.NotFound, Op: op, Msg: "not found", Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &apperr.Error{Kind: apperr.Conflict, Op: op, Msg: "already exists", Err: err}
		case pgForeignKeyViolation:
			return &apperr.Error{Kind: apperr.NotFound, Op: op, Msg: "referenced record does not exist", Err: err}
		case pgCheckViolation, pgNumericOutOfRange:
			return &apperr.Error{Kind: apperr.Validation, Op: op, Msg: "value out of range", Err: err}
		}
	}
	return apperr.Wrap(apperr.Storage, op, err)
}
