package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/attendance"
)

// Kind classifies a ServiceError. Everything but KindStorageFailure is an expected outcome.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindIneligible     Kind = "ineligible"
	KindConflict       Kind = "conflict"
	KindNotInState     Kind = "not_in_state"
	KindInvalidInput   Kind = "invalid_input"
	KindStorageFailure Kind = "storage_failure"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

type ServiceError struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// Is matches any ServiceError with the same code, so the package sentinels work with errors.Is
// regardless of the attached cause.
func (e *ServiceError) Is(target error) bool {
	var t *ServiceError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Expected reports whether the error is a modeled outcome rather than a system failure.
func (e *ServiceError) Expected() bool {
	return e.Kind != KindStorageFailure
}

func newServiceError(kind Kind, status int, code, message string) *ServiceError {
	return &ServiceError{Kind: kind, Status: status, Code: code, Message: message}
}

var (
	ErrRequestUnavailable   = newServiceError(KindNotFound, http.StatusNotFound, "REQUEST_UNAVAILABLE", "solicitation is not available")
	ErrAgentNotFound        = newServiceError(KindNotFound, http.StatusNotFound, "AGENT_NOT_FOUND", "agent not found")
	ErrAgentInactive        = newServiceError(KindIneligible, http.StatusForbidden, "AGENT_INACTIVE", "agent or store is inactive")
	ErrIneligible           = newServiceError(KindIneligible, http.StatusNotFound, "INELIGIBLE", "solicitation is not eligible for this store")
	ErrStoreConflict        = newServiceError(KindConflict, http.StatusConflict, "STORE_CONFLICT", "solicitation already claimed by another agent of this store")
	ErrAlreadyClaimed       = newServiceError(KindConflict, http.StatusConflict, "ALREADY_CLAIMED", "solicitation is claimed by this agent")
	ErrAlreadyClaimedBySelf = newServiceError(KindConflict, http.StatusOK, "ALREADY_CLAIMED_BY_SELF", "solicitation already claimed by this agent")
	ErrNotClaimed           = newServiceError(KindNotInState, http.StatusNotFound, "NOT_CLAIMED", "solicitation is not claimed by this agent")
	ErrNotSeen              = newServiceError(KindNotInState, http.StatusNotFound, "NOT_SEEN", "solicitation is not marked as seen by this agent")
	ErrInvalidParams        = newServiceError(KindInvalidInput, http.StatusBadRequest, "INVALID_PARAMS", "invalid list parameters")
	ErrStorageFailure       = newServiceError(KindStorageFailure, http.StatusInternalServerError, "STORAGE_FAILURE", "storage failure")
)

func withCause(sentinel *ServiceError, cause error) *ServiceError {
	out := *sentinel
	out.Cause = cause
	return &out
}

func requestUnavailable(inactive bool) *ServiceError {
	if !inactive {
		return ErrRequestUnavailable
	}
	out := *ErrRequestUnavailable
	out.Kind = KindIneligible
	return &out
}

func storageFailure(err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	return withCause(ErrStorageFailure, err)
}

// mapWriteError translates a ledger write failure. Only the claimed-store unique index is a
// modeled conflict; every other constraint violation is a storage failure.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case attendance.ClaimedStoreConstraint:
			recordWriteConflict("claimed_store")
			return withCause(ErrStoreConflict, err)
		case attendance.AgentConstraint:
			recordWriteConflict("agent")
		default:
			recordWriteConflict("unique")
		}
	}
	return storageFailure(err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}

// isSerializationFailure covers both serialization and deadlock aborts.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
