package services

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/autopeca/marketplace/pkg/composables"
	"github.com/autopeca/marketplace/pkg/configuration"
)

// txRunner starts a fresh transaction around fn. Tests swap in an in-memory runner.
type txRunner func(ctx context.Context, fn func(txCtx context.Context) error, opts ...composables.TxOption) error

func inTxResult[T any](ctx context.Context, run txRunner, fn func(txCtx context.Context) (T, error), opts ...composables.TxOption) (T, error) {
	var out T
	err := run(ctx, func(txCtx context.Context) error {
		v, err := fn(txCtx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// ClaimIsoLevel maps ATTENDANCE_CLAIM_ISOLATION onto a pgx isolation level.
func ClaimIsoLevel(mode string) pgx.TxIsoLevel {
	if mode == configuration.IsolationSerializable {
		return pgx.Serializable
	}
	return pgx.ReadCommitted
}

func asServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// logOutcome logs modeled outcomes at info and storage failures at error.
func logOutcome(logger *logrus.Entry, op string, err error) {
	if err == nil {
		return
	}
	se, ok := asServiceError(err)
	switch {
	case ok && se.Expected():
		logger.WithFields(logrus.Fields{"operation": op, "code": se.Code}).Info("attendance: expected outcome")
	case isCanceled(err):
		logger.WithField("operation", op).WithError(err).Info("attendance: request canceled")
	default:
		logger.WithField("operation", op).WithError(err).Error("attendance: storage failure")
	}
}
