package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/attendance"
	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/solicitation"
	"github.com/autopeca/marketplace/modules/attendance/domain/entities/agent"
	"github.com/autopeca/marketplace/modules/attendance/domain/entities/store"
	"github.com/autopeca/marketplace/pkg/constants"
)

func TestSolicitationRepository_ListAvailableFiltersAndAttachesImages(t *testing.T) {
	t.Parallel()

	solA := uuid.New()
	solB := uuid.New()
	imgA := uuid.New()
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	yearFrom := int32(2012)

	var listSQL string
	var listArgs []any
	var imageArgs []any
	calls := 0
	tx := &stubTx{
		queryFunc: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
			calls++
			if calls == 1 {
				listSQL = sql
				listArgs = args
				return &stubRows{data: [][]any{
					solicitationRow(solA, "Campinas", &yearFrom, created),
					solicitationRow(solA, "Campinas", &yearFrom, created),
					solicitationRow(solB, "Campinas", nil, created.Add(-time.Hour)),
				}}, nil
			}
			imageArgs = args
			require.Contains(t, sql, "solicitation_images")
			return &stubRows{data: [][]any{
				{imgA, solA, "https://cdn/a1.jpg", int32(0)},
				{imgA, solA, "https://cdn/a1.jpg", int32(0)},
				{uuid.New(), solA, "https://cdn/a2.jpg", int32(1)},
			}}, nil
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)

	storeID := uuid.New()
	agentID := uuid.New()
	repo := NewSolicitationRepository()
	list, err := repo.ListAvailable(ctx, &solicitation.AvailableParams{
		City: " campinas ", State: "SP", StoreID: storeID, AgentID: agentID, Limit: 10, Offset: 20,
	})
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.Contains(t, listSQL, "s.status = 'active'")
	require.Contains(t, listSQL, "lower(btrim(s.city)) = lower(btrim($1))")
	require.Contains(t, listSQL, "NOT EXISTS")
	require.Contains(t, listSQL, "ar.store_id = $3 AND ar.status = 'claimed'")
	require.Contains(t, listSQL, "ar.agent_id = $4 AND ar.status = 'seen'")
	require.Contains(t, listSQL, "ORDER BY s.created_at DESC")
	require.Contains(t, listSQL, "LIMIT 10 OFFSET 20")
	require.Equal(t, []any{" campinas ", "SP", storeID, agentID}, listArgs)

	require.Len(t, imageArgs, 1)
	require.ElementsMatch(t, []string{solA.String(), solB.String()}, imageArgs[0])

	require.Equal(t, solA, list[0].ID)
	require.Equal(t, []string{"https://cdn/a1.jpg", "https://cdn/a2.jpg"}, list[0].ImageURLs)
	require.NotNil(t, list[0].Vehicle.YearFrom)
	require.Equal(t, 2012, *list[0].Vehicle.YearFrom)
	require.Nil(t, list[1].ImageURLs)
	require.Nil(t, list[1].Vehicle.YearFrom)
}

func TestSolicitationRepository_ListMarkedEligibleOnly(t *testing.T) {
	t.Parallel()

	solID := uuid.New()
	recordID := uuid.New()
	markedAt := time.Now().UTC()
	var captured string
	var capturedArgs []any
	tx := &stubTx{
		queryFunc: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
			if captured == "" {
				captured = sql
				capturedArgs = args
				row := solicitationRow(solID, "Recife", nil, markedAt)
				return &stubRows{data: [][]any{append(row, recordID, markedAt)}}, nil
			}
			return &stubRows{}, nil
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)

	agentID := uuid.New()
	marked, err := NewSolicitationRepository().ListMarked(ctx, &solicitation.MarkedParams{
		AgentID: agentID, Status: solicitation.MarkedSeen, EligibleOnly: true, City: "Recife", State: "PE",
	})
	require.NoError(t, err)
	require.Len(t, marked, 1)
	require.Equal(t, recordID, marked[0].RecordID)
	require.Equal(t, solID, marked[0].Solicitation.ID)
	require.Contains(t, captured, "JOIN solicitations s ON s.id = ar.solicitation_id")
	require.Contains(t, captured, "ORDER BY ar.marked_at DESC")
	require.Contains(t, captured, "s.status = 'active'")
	require.NotContains(t, captured, "LIMIT")
	require.Equal(t, []any{agentID, "seen", "Recife", "PE"}, capturedArgs)
}

func TestSolicitationRepository_ListMarkedClaimedSkipsGeo(t *testing.T) {
	t.Parallel()

	var captured string
	tx := &stubTx{
		queryFunc: func(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
			captured = sql
			return &stubRows{}, nil
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)

	marked, err := NewSolicitationRepository().ListMarked(ctx, &solicitation.MarkedParams{
		AgentID: uuid.New(), Status: solicitation.MarkedClaimed,
	})
	require.NoError(t, err)
	require.Empty(t, marked)
	require.NotContains(t, captured, "s.status = 'active'")
}

func TestSolicitationRepository_GetByIDNotFound(t *testing.T) {
	t.Parallel()

	tx := &stubTx{
		queryRowFunc: func(context.Context, string, ...any) pgx.Row {
			return stubRow{scan: func(...any) error { return pgx.ErrNoRows }}
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)

	_, err := NewSolicitationRepository().GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, solicitation.ErrNotFound)

	_, err = NewSolicitationRepository().GetCustomer(ctx, uuid.New())
	require.ErrorIs(t, err, solicitation.ErrNotFound)
}

func TestDirectoryRepositories(t *testing.T) {
	t.Parallel()

	storeID := uuid.New()
	agentID := uuid.New()
	tx := &stubTx{
		queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
			return stubRow{scan: func(dest ...any) error {
				switch {
				case args[0] == uuid.Nil:
					return pgx.ErrNoRows
				case sql == storeGetQuery:
					return assign(dest, storeID, "Auto Pecas Sul", "1199", "Campinas", "SP", true)
				case sql == agentGetQuery:
					return assign(dest, agentID, storeID, "Ana", "1198", "ana@example.com", false)
				}
				return fmt.Errorf("unexpected query %q", sql)
			}}
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)

	s, err := NewStoreRepository().GetByID(ctx, storeID)
	require.NoError(t, err)
	require.Equal(t, "Campinas", s.City)
	require.True(t, s.Active)

	a, err := NewAgentRepository().GetByID(ctx, agentID)
	require.NoError(t, err)
	require.Equal(t, storeID, a.StoreID)
	require.False(t, a.Active)

	_, err = NewStoreRepository().GetByID(ctx, uuid.Nil)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = NewAgentRepository().GetByID(ctx, uuid.Nil)
	require.ErrorIs(t, err, agent.ErrNotFound)
}

func TestAttendanceRepository_CreateKeepsPgError(t *testing.T) {
	t.Parallel()

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: attendance.ClaimedStoreConstraint}
	var args []any
	tx := &stubTx{
		queryRowFunc: func(_ context.Context, sql string, a ...any) pgx.Row {
			require.Contains(t, sql, "INSERT INTO attendance_records")
			args = a
			return stubRow{scan: func(...any) error { return pgErr }}
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)

	_, err := NewAttendanceRepository().Create(ctx, &attendance.Record{
		SolicitationID: uuid.New(), StoreID: uuid.New(), AgentID: uuid.New(), Status: attendance.StatusClaimed,
	})
	require.Error(t, err)
	var got *pgconn.PgError
	require.True(t, errors.As(err, &got))
	require.Equal(t, attendance.ClaimedStoreConstraint, got.ConstraintName)
	require.Equal(t, "claimed", args[3])
	require.False(t, args[4].(time.Time).IsZero())
}

func TestAttendanceRepository_FindAndUpdate(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	solID := uuid.New()
	storeID := uuid.New()
	agentID := uuid.New()
	markedAt := time.Now().UTC()
	tx := &stubTx{
		queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
			return stubRow{scan: func(dest ...any) error {
				switch sql {
				case recordByRequestAndAgentQuery:
					return assign(dest, id, solID, storeID, agentID, "seen", markedAt)
				case recordUpdateStatusQuery:
					require.Equal(t, "claimed", args[1])
					return assign(dest, id, solID, storeID, agentID, "claimed", args[2].(time.Time))
				case recordClaimedByRequestAndStoreQuery:
					return pgx.ErrNoRows
				}
				return fmt.Errorf("unexpected query %q", sql)
			}}
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)
	r := NewAttendanceRepository()

	rec, err := r.FindByRequestAndAgent(ctx, solID, agentID)
	require.NoError(t, err)
	require.True(t, rec.IsSeen())

	rec, err = r.UpdateStatus(ctx, id, attendance.StatusClaimed, markedAt.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, rec.IsClaimed())
	require.Equal(t, markedAt.Add(time.Minute), rec.MarkedAt)

	_, err = r.FindClaimedByRequestAndStore(ctx, solID, storeID)
	require.ErrorIs(t, err, attendance.ErrRecordNotFound)
}

func TestAttendanceRepository_DeleteAndCounts(t *testing.T) {
	t.Parallel()

	var execSQL []string
	var countSQL string
	var countArgs []any
	affected := "DELETE 0"
	tx := &stubTx{
		execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			execSQL = append(execSQL, sql)
			return pgconn.NewCommandTag(affected), nil
		},
		queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
			countSQL = sql
			countArgs = args
			return stubRow{scan: func(dest ...any) error { return assign(dest, int64(3)) }}
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)
	r := NewAttendanceRepository()

	require.ErrorIs(t, r.Delete(ctx, uuid.New()), attendance.ErrRecordNotFound)

	affected = "DELETE 2"
	n, err := r.DeleteSeenByRequestAndStore(ctx, uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.Contains(t, execSQL[1], "agent_id <> $3 AND status = 'seen'")

	agentID := uuid.New()
	total, err := r.CountClaimedByAgent(ctx, agentID, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.NotContains(t, countSQL, "marked_at")
	require.Len(t, countArgs, 1)

	since := time.Now().Truncate(24 * time.Hour)
	_, err = r.CountClaimedByAgent(ctx, agentID, since)
	require.NoError(t, err)
	require.Contains(t, countSQL, "marked_at >= $2")
	require.Equal(t, []any{agentID, since}, countArgs)
}

func TestRepositories_NoTransaction(t *testing.T) {
	t.Parallel()

	_, err := NewAttendanceRepository().FindByRequestAndAgent(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
}

func solicitationRow(id uuid.UUID, city string, yearFrom *int32, created time.Time) []any {
	return []any{
		id, uuid.New(), "Farol dianteiro", "VW", "Gol", yearFrom, (*int32)(nil),
		"iluminacao", "prata", "", city, "SP", "active", created,
	}
}

type stubTx struct {
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *stubTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}

func (s *stubTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	return nil
}

func (s *stubTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if s.execFunc == nil {
		return pgconn.CommandTag{}, errors.New("exec not implemented")
	}
	return s.execFunc(ctx, sql, args...)
}

func (s *stubTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if s.queryFunc == nil {
		return nil, errors.New("query not implemented")
	}
	return s.queryFunc(ctx, sql, args...)
}

func (s *stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if s.queryRowFunc == nil {
		return stubRow{}
	}
	return s.queryRowFunc(ctx, sql, args...)
}

type stubRows struct {
	data [][]any
	idx  int
	err  error
}

func (r *stubRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.data) {
		return errors.New("no current row to scan")
	}
	return assign(dest, r.data[r.idx-1]...)
}

func (r *stubRows) Values() ([]any, error) {
	if r.idx == 0 || r.idx > len(r.data) {
		return nil, errors.New("no current row")
	}
	return r.data[r.idx-1], nil
}

func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Err() error                                   { return r.err }
func (r *stubRows) Close()                                       {}
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return errors.New("scan not implemented")
	}
	return r.scan(dest...)
}

func assign(dest []any, row ...any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("destination length %d does not match row length %d", len(dest), len(row))
	}
	for i, target := range dest {
		switch v := target.(type) {
		case *uuid.UUID:
			*v = row[i].(uuid.UUID)
		case *string:
			*v = row[i].(string)
		case *bool:
			*v = row[i].(bool)
		case *int32:
			*v = row[i].(int32)
		case *int64:
			*v = row[i].(int64)
		case **int32:
			*v = row[i].(*int32)
		case *time.Time:
			*v = row[i].(time.Time)
		default:
			return fmt.Errorf("unsupported scan target %T", target)
		}
	}
	return nil
}

func TestAttendanceRepository_LockStoreClaim(t *testing.T) {
	t.Parallel()

	var lockSQL string
	var lockArgs []any
	tx := &stubTx{
		execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			lockSQL = sql
			lockArgs = args
			return pgconn.NewCommandTag("SELECT 1"), nil
		},
	}
	ctx := context.WithValue(context.Background(), constants.TxKey, tx)

	solID := uuid.New()
	storeID := uuid.New()
	require.NoError(t, NewAttendanceRepository().LockStoreClaim(ctx, solID, storeID))
	require.Contains(t, lockSQL, "pg_advisory_xact_lock")
	require.Equal(t, []any{solID.String(), storeID.String()}, lockArgs)

	tx.execFunc = func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "57014", Message: "canceling statement"}
	}
	err := NewAttendanceRepository().LockStoreClaim(ctx, solID, storeID)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	require.Equal(t, "57014", pgErr.Code)

	require.Error(t, NewAttendanceRepository().LockStoreClaim(context.Background(), solID, storeID))
}
