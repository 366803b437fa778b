package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"creatorconnect/event"
)

var (
	// ErrNotFound signals the campaign does not exist.
	ErrNotFound = errors.New("campaign: not found")
	// ErrConcurrentModification signals a version conflict on write; the
	// caller should retry its recompute.
	ErrConcurrentModification = errors.New("campaign: concurrent modification")
)

// Repository is the data access surface used by the campaign service.
type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, c Campaign) (Campaign, error)
	Get(ctx context.Context, id string) (Campaign, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Campaign, error)
	List(ctx context.Context, filters Filters) ([]Campaign, int, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, from, to Status, actorID string) (Campaign, error)
	ListMembers(ctx context.Context, campaignID string) ([]Member, error)
}

// PGRepository implements Repository and EngineStore over pgx.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const campaignColumns = `id, brand_id, title, description, required_deliverables, status, progress, version, asset_ref, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, c Campaign) (Campaign, error) {
	query := fmt.Sprintf(`
		INSERT INTO campaigns (id, brand_id, title, description, required_deliverables, status, asset_ref)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7)
		RETURNING %s
	`, campaignColumns)

	created, err := scanCampaign(tx.QueryRow(ctx, query,
		c.ID,
		c.BrandID,
		c.Title,
		c.Description,
		c.RequiredDeliverables,
		c.Status,
		c.AssetRef,
	))
	if err != nil {
		return Campaign{}, fmt.Errorf("campaign: insert: %w", err)
	}

	if err := event.Append(ctx, tx, event.Transition{
		EntityType: "campaign",
		EntityID:   created.ID,
		FromState:  "",
		ToState:    string(created.Status),
		ActorID:    &created.BrandID,
		Payload:    map[string]any{"title": created.Title},
	}); err != nil {
		return Campaign{}, err
	}

	return created, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Campaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM campaigns WHERE id = $1`, campaignColumns)
	c, err := scanCampaign(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, fmt.Errorf("campaign: get: %w", err)
	}
	return c, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Campaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM campaigns WHERE id = $1 FOR UPDATE`, campaignColumns)
	c, err := scanCampaign(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, fmt.Errorf("campaign: get for update: %w", err)
	}
	return c, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Campaign, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	where := "WHERE 1=1"
	args := []any{}
	if filters.BrandID != "" {
		args = append(args, filters.BrandID)
		where += fmt.Sprintf(" AND brand_id=$%d", len(args))
	}
	if filters.Status != "" {
		args = append(args, filters.Status)
		where += fmt.Sprintf(" AND status=$%d", len(args))
	}

	query := fmt.Sprintf(`SELECT %s FROM campaigns %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		campaignColumns, where, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("campaign: list: %w", err)
	}
	defer rows.Close()

	list := []Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("campaign: scan: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("campaign: iterate: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM campaigns %s`, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("campaign: count: %w", err)
	}

	return list, total, nil
}

// UpdateStatus applies a non-derived transition (publish, cancel) with a
// version bump and a transition event in the same transaction.
func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, from, to Status, actorID string) (Campaign, error) {
	query := fmt.Sprintf(`
		UPDATE campaigns
		SET status = $2,
		    version = version + 1,
		    updated_at = get_tx_timestamp()
		WHERE id = $1 AND status = $3
		RETURNING %s
	`, campaignColumns)

	c, err := scanCampaign(tx.QueryRow(ctx, query, id, to, from))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, ErrConcurrentModification
		}
		return Campaign{}, fmt.Errorf("campaign: update status: %w", err)
	}

	if err := event.Append(ctx, tx, event.Transition{
		EntityType: "campaign",
		EntityID:   id,
		FromState:  string(from),
		ToState:    string(to),
		ActorID:    &actorID,
	}); err != nil {
		return Campaign{}, err
	}

	return c, nil
}

func (r *PGRepository) ListMembers(ctx context.Context, campaignID string) ([]Member, error) {
	const query = `
		SELECT campaign_id, creator_id, invitation_id, joined_at
		FROM campaign_creators
		WHERE campaign_id = $1
		ORDER BY joined_at ASC
	`

	rows, err := r.pool.Query(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign: list members: %w", err)
	}
	defer rows.Close()

	members := make([]Member, 0, 8)
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.CampaignID, &m.CreatorID, &m.InvitationID, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("campaign: scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign: iterate members: %w", err)
	}
	return members, nil
}

func scanCampaign(row pgx.Row) (Campaign, error) {
	var c Campaign
	return c, row.Scan(
		&c.ID,
		&c.BrandID,
		&c.Title,
		&c.Description,
		&c.RequiredDeliverables,
		&c.Status,
		&c.Progress,
		&c.Version,
		&c.AssetRef,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
}
