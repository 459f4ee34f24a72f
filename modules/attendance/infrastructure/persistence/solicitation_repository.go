package persistence

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/attendance"
	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/solicitation"
	"github.com/autopeca/marketplace/modules/attendance/infrastructure/persistence/models"
	"github.com/autopeca/marketplace/pkg/composables"
	"github.com/autopeca/marketplace/pkg/repo"
)

const (
	solicitationColumns = `s.id, s.customer_id, s.description, s.make, s.model, s.year_from, s.year_to,
		s.category, s.color, s.plate, s.city, s.state, s.status, s.created_at`

	solicitationGetQuery = `SELECT ` + solicitationColumns + ` FROM solicitations s WHERE s.id = $1`

	customerGetQuery = `SELECT id, name, phone, email FROM customers WHERE id = $1`

	solicitationImagesQuery = `
		SELECT id, solicitation_id, url, position
		FROM solicitation_images
		WHERE solicitation_id = ANY($1::uuid[])
		ORDER BY solicitation_id, position, id`
)

type SolicitationRepository struct{}

func NewSolicitationRepository() solicitation.Repository {
	return &SolicitationRepository{}
}

func (r *SolicitationRepository) GetByID(ctx context.Context, id uuid.UUID) (*solicitation.Solicitation, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	row, err := scanSolicitation(tx.QueryRow(ctx, solicitationGetQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, solicitation.ErrNotFound
		}
		return nil, errors.Wrap(err, "get solicitation")
	}
	s := toDomainSolicitation(row)
	if err := r.attachImages(ctx, tx, []*solicitation.Solicitation{s}); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SolicitationRepository) GetCustomer(ctx context.Context, id uuid.UUID) (*solicitation.Customer, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var row models.Customer
	if err := tx.QueryRow(ctx, customerGetQuery, id).Scan(&row.ID, &row.Name, &row.Phone, &row.Email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, solicitation.ErrNotFound
		}
		return nil, errors.Wrap(err, "get customer")
	}
	return toDomainCustomer(&row), nil
}

func (r *SolicitationRepository) ListAvailable(
	ctx context.Context,
	params *solicitation.AvailableParams,
) ([]*solicitation.Solicitation, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	where, args := buildAvailableFilters(params)
	query := `SELECT ` + solicitationColumns + `
		FROM solicitations s
		WHERE ` + where + `
		ORDER BY s.created_at DESC, s.id`
	if l := repo.FormatLimitOffset(params.Limit, params.Offset); l != "" {
		query += " " + l
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list available solicitations")
	}
	defer rows.Close()

	results := make([]*solicitation.Solicitation, 0)
	seen := make(map[uuid.UUID]struct{})
	for rows.Next() {
		row, err := scanSolicitation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan available solicitation")
		}
		if _, dup := seen[row.ID]; dup {
			continue
		}
		seen[row.ID] = struct{}{}
		results = append(results, toDomainSolicitation(row))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list available solicitations")
	}
	rows.Close()

	if err := r.attachImages(ctx, tx, results); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *SolicitationRepository) CountAvailable(ctx context.Context, params *solicitation.AvailableParams) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	where, args := buildAvailableFilters(params)
	var count int64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM solicitations s WHERE `+where, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count available solicitations")
	}
	return count, nil
}

func (r *SolicitationRepository) ListMarked(
	ctx context.Context,
	params *solicitation.MarkedParams,
) ([]*solicitation.Marked, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	where, args := buildMarkedFilters(params)
	query := `SELECT ` + solicitationColumns + `, ar.id, ar.marked_at
		FROM attendance_records ar
		JOIN solicitations s ON s.id = ar.solicitation_id
		WHERE ` + where + `
		ORDER BY ar.marked_at DESC, ar.id`
	if l := repo.FormatLimitOffset(params.Limit, params.Offset); l != "" {
		query += " " + l
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list marked solicitations")
	}
	defer rows.Close()

	results := make([]*solicitation.Marked, 0)
	var list []*solicitation.Solicitation
	for rows.Next() {
		var row models.Solicitation
		var marked solicitation.Marked
		if err := rows.Scan(append(solicitationDest(&row), &marked.RecordID, &marked.MarkedAt)...); err != nil {
			return nil, errors.Wrap(err, "scan marked solicitation")
		}
		marked.Solicitation = toDomainSolicitation(&row)
		list = append(list, marked.Solicitation)
		results = append(results, &marked)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list marked solicitations")
	}
	rows.Close()

	if err := r.attachImages(ctx, tx, list); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *SolicitationRepository) CountMarked(ctx context.Context, params *solicitation.MarkedParams) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	where, args := buildMarkedFilters(params)
	var count int64
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM attendance_records ar
		JOIN solicitations s ON s.id = ar.solicitation_id
		WHERE `+where,
		args...,
	).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count marked solicitations")
	}
	return count, nil
}

// attachImages loads image URLs for all given solicitations in one query. A solicitation that
// appears more than once in list shares a single image slice.
func (r *SolicitationRepository) attachImages(ctx context.Context, tx repo.Tx, list []*solicitation.Solicitation) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, 0, len(list))
	byID := make(map[uuid.UUID][]*solicitation.Solicitation, len(list))
	for _, s := range list {
		if _, ok := byID[s.ID]; !ok {
			ids = append(ids, s.ID.String())
		}
		byID[s.ID] = append(byID[s.ID], s)
	}

	rows, err := tx.Query(ctx, solicitationImagesQuery, ids)
	if err != nil {
		return errors.Wrap(err, "list solicitation images")
	}
	defer rows.Close()

	urls := make(map[uuid.UUID][]string, len(ids))
	imageSeen := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var img models.SolicitationImage
		if err := rows.Scan(&img.ID, &img.SolicitationID, &img.URL, &img.Position); err != nil {
			return errors.Wrap(err, "scan solicitation image")
		}
		if _, dup := imageSeen[img.ID]; dup {
			continue
		}
		imageSeen[img.ID] = struct{}{}
		urls[img.SolicitationID] = append(urls[img.SolicitationID], img.URL)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "list solicitation images")
	}
	for id, items := range byID {
		for _, s := range items {
			s.ImageURLs = urls[id]
		}
	}
	return nil
}

func buildAvailableFilters(params *solicitation.AvailableParams) (string, []any) {
	where := []string{
		"s.status = 'active'",
		`lower(btrim(s.city)) = lower(btrim($1))`,
		`lower(btrim(s.state)) = lower(btrim($2))`,
		`NOT EXISTS (
			SELECT 1 FROM attendance_records ar
			WHERE ar.solicitation_id = s.id
			  AND ((ar.store_id = $3 AND ar.status = '` + string(attendance.StatusClaimed) + `')
			    OR (ar.agent_id = $4 AND ar.status = '` + string(attendance.StatusSeen) + `'))
		)`,
	}
	return strings.Join(where, " AND "), []any{params.City, params.State, params.StoreID, params.AgentID}
}

func buildMarkedFilters(params *solicitation.MarkedParams) (string, []any) {
	where := []string{"ar.agent_id = $1", "ar.status = $2"}
	args := []any{params.AgentID, string(params.Status)}
	if params.EligibleOnly {
		where = append(where,
			"s.status = 'active'",
			`lower(btrim(s.city)) = lower(btrim($3))`,
			`lower(btrim(s.state)) = lower(btrim($4))`,
		)
		args = append(args, params.City, params.State)
	}
	return strings.Join(where, " AND "), args
}

func solicitationDest(row *models.Solicitation) []any {
	return []any{
		&row.ID, &row.CustomerID, &row.Description, &row.Make, &row.Model, &row.YearFrom, &row.YearTo,
		&row.Category, &row.Color, &row.Plate, &row.City, &row.State, &row.Status, &row.CreatedAt,
	}
}

func scanSolicitation(row pgx.Row) (*models.Solicitation, error) {
	var m models.Solicitation
	if err := row.Scan(solicitationDest(&m)...); err != nil {
		return nil, err
	}
	return &m, nil
}
