package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-adsync/pkg/retry"
)

// Postgres SQLSTATE codes the service reacts to.
const (
	codeUndefinedTable   = "42P01"
	codeUndefinedColumn  = "42703"
	codeUniqueViolation  = "23505"
	codeSerialization    = "40001"
	codeDeadlock         = "40P01"
	codeAdminShutdown    = "57P01"
	codeCannotConnectNow = "57P03"
	codeTooManyConns     = "53300"
)

// IsUndefinedTable reports whether err means an expected table or column is
// not provisioned yet. Callers treat this as a soft condition.
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeUndefinedTable || pgErr.Code == codeUndefinedColumn
	}
	return false
}

// IsUniqueViolation reports whether err is a duplicate-key conflict.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeUniqueViolation
	}
	return false
}

// IsTransient classifies store-write failures. Connection loss, timeouts,
// gateway errors, serialization failures and deadlocks are retryable; every
// other error (constraint violations, bad SQL) is fatal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerialization, codeDeadlock, codeAdminShutdown, codeCannotConnectNow, codeTooManyConns:
			return true
		}
		// Class 08: connection exception
		if len(pgErr.Code) == 5 && pgErr.Code[:2] == "08" {
			return true
		}
		return false
	}

	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	return retry.IsRetryable(err)
}
