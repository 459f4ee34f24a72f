package persistence

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/attendance"
	"github.com/autopeca/marketplace/modules/attendance/infrastructure/persistence/models"
	"github.com/autopeca/marketplace/pkg/composables"
)

const (
	recordColumns = `id, solicitation_id, store_id, agent_id, status, marked_at`

	recordByRequestAndAgentQuery = `SELECT ` + recordColumns + `
		FROM attendance_records
		WHERE solicitation_id = $1 AND agent_id = $2`

	recordClaimedByRequestAndStoreQuery = `SELECT ` + recordColumns + `
		FROM attendance_records
		WHERE solicitation_id = $1 AND store_id = $2 AND status = 'claimed'`

	recordLockStoreClaimQuery = `SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::text, 0))`

	recordInsertQuery = `INSERT INTO attendance_records (solicitation_id, store_id, agent_id, status, marked_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + recordColumns

	recordUpdateStatusQuery = `UPDATE attendance_records
		SET status = $2, marked_at = $3
		WHERE id = $1
		RETURNING ` + recordColumns

	recordDeleteQuery = `DELETE FROM attendance_records WHERE id = $1`

	recordDeleteSeenByStoreQuery = `DELETE FROM attendance_records
		WHERE solicitation_id = $1 AND store_id = $2 AND agent_id <> $3 AND status = 'seen'`

	recordCountClaimedQuery = `SELECT COUNT(*) FROM attendance_records
		WHERE agent_id = $1 AND status = 'claimed'`
)

type AttendanceRepository struct{}

func NewAttendanceRepository() attendance.Repository {
	return &AttendanceRepository{}
}

func (r *AttendanceRepository) FindByRequestAndAgent(
	ctx context.Context,
	solicitationID, agentID uuid.UUID,
) (*attendance.Record, error) {
	return r.queryOne(ctx, "find attendance record", recordByRequestAndAgentQuery, solicitationID, agentID)
}

func (r *AttendanceRepository) FindClaimedByRequestAndStore(
	ctx context.Context,
	solicitationID, storeID uuid.UUID,
) (*attendance.Record, error) {
	return r.queryOne(ctx, "find store claim", recordClaimedByRequestAndStoreQuery, solicitationID, storeID)
}

func (r *AttendanceRepository) LockStoreClaim(ctx context.Context, solicitationID, storeID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, recordLockStoreClaimQuery, solicitationID.String(), storeID.String()); err != nil {
		return errors.Wrap(err, "lock store claim")
	}
	return nil
}

func (r *AttendanceRepository) Create(ctx context.Context, record *attendance.Record) (*attendance.Record, error) {
	row := toDBRecord(record)
	if row.MarkedAt.IsZero() {
		row.MarkedAt = time.Now()
	}
	return r.queryOne(ctx, "create attendance record", recordInsertQuery,
		row.SolicitationID, row.StoreID, row.AgentID, row.Status, row.MarkedAt,
	)
}

func (r *AttendanceRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status attendance.Status,
	markedAt time.Time,
) (*attendance.Record, error) {
	return r.queryOne(ctx, "update attendance record", recordUpdateStatusQuery, id, string(status), markedAt)
}

func (r *AttendanceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, recordDeleteQuery, id)
	if err != nil {
		return errors.Wrap(err, "delete attendance record")
	}
	if tag.RowsAffected() == 0 {
		return attendance.ErrRecordNotFound
	}
	return nil
}

func (r *AttendanceRepository) DeleteSeenByRequestAndStore(
	ctx context.Context,
	solicitationID, storeID, exceptAgentID uuid.UUID,
) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, recordDeleteSeenByStoreQuery, solicitationID, storeID, exceptAgentID)
	if err != nil {
		return 0, errors.Wrap(err, "delete store seen records")
	}
	return tag.RowsAffected(), nil
}

func (r *AttendanceRepository) CountClaimedByAgent(ctx context.Context, agentID uuid.UUID, since time.Time) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	query := recordCountClaimedQuery
	args := []any{agentID}
	if !since.IsZero() {
		query += " AND marked_at >= $2"
		args = append(args, since)
	}
	var count int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count agent claims")
	}
	return count, nil
}

// queryOne runs a single-row statement; no rows maps to ErrRecordNotFound. Other errors keep
// their *pgconn.PgError in the chain for the services to classify.
func (r *AttendanceRepository) queryOne(ctx context.Context, op, query string, args ...any) (*attendance.Record, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var row models.AttendanceRecord
	if err := tx.QueryRow(ctx, query, args...).Scan(
		&row.ID, &row.SolicitationID, &row.StoreID, &row.AgentID, &row.Status, &row.MarkedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, attendance.ErrRecordNotFound
		}
		return nil, errors.Wrap(err, op)
	}
	return toDomainRecord(&row), nil
}
