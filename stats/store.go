package stats

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"creatorconnect/account"
)

// ErrNotFound signals no snapshot exists for the actor yet.
var ErrNotFound = errors.New("stats: snapshot not found")

// Store is the persistence surface of the recalculator.
type Store interface {
	ListActors(ctx context.Context) ([]ActorRef, error)
	Compute(ctx context.Context, tx pgx.Tx, ref ActorRef) (Snapshot, error)
	Upsert(ctx context.Context, tx pgx.Tx, snap Snapshot) error
	Get(ctx context.Context, actorID string) (Snapshot, error)
}

type PGStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// ListActors returns every brand and creator. Admins hold no snapshots.
func (s *PGStore) ListActors(ctx context.Context) ([]ActorRef, error) {
	const query = `
		SELECT id, role::text FROM users
		WHERE role IN ('brand', 'creator')
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("stats: list actors: %w", err)
	}
	defer rows.Close()

	refs := []ActorRef{}
	for rows.Next() {
		var ref ActorRef
		if err := rows.Scan(&ref.ID, &ref.Role); err != nil {
			return nil, fmt.Errorf("stats: scan actor: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stats: iterate actors: %w", err)
	}
	return refs, nil
}

// brandRollupSQL aggregates over the campaigns the brand owns.
const brandRollupSQL = `
	SELECT
		(SELECT COUNT(*) FROM campaigns WHERE brand_id = $1 AND status = 'completed'),
		(SELECT COUNT(*) FROM campaigns WHERE brand_id = $1 AND status IN ('open', 'in_progress')),
		(SELECT COUNT(*) FROM content_submissions s JOIN campaigns c ON c.id = s.campaign_id
			WHERE c.brand_id = $1 AND s.status = 'approved'),
		(SELECT COUNT(*) FROM content_submissions s JOIN campaigns c ON c.id = s.campaign_id
			WHERE c.brand_id = $1 AND s.status = 'rejected')
`

// creatorRollupSQL aggregates over the campaigns the creator joined.
const creatorRollupSQL = `
	SELECT
		(SELECT COUNT(*) FROM campaign_creators m JOIN campaigns c ON c.id = m.campaign_id
			WHERE m.creator_id = $1 AND c.status = 'completed'),
		(SELECT COUNT(*) FROM campaign_creators m JOIN campaigns c ON c.id = m.campaign_id
			WHERE m.creator_id = $1 AND c.status IN ('open', 'in_progress')),
		(SELECT COUNT(*) FROM content_submissions WHERE creator_id = $1 AND status = 'approved'),
		(SELECT COUNT(*) FROM content_submissions WHERE creator_id = $1 AND status = 'rejected')
`

// Compute derives the actor's rollup from the authoritative tables inside the
// caller's transaction.
func (s *PGStore) Compute(ctx context.Context, tx pgx.Tx, ref ActorRef) (Snapshot, error) {
	query := creatorRollupSQL
	if ref.Role == account.RoleBrand {
		query = brandRollupSQL
	}

	snap := Snapshot{ActorID: ref.ID, Role: ref.Role}
	err := tx.QueryRow(ctx, query, ref.ID).Scan(
		&snap.CompletedCampaigns,
		&snap.ActiveCampaigns,
		&snap.ApprovedSubmissions,
		&snap.RejectedSubmissions,
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("stats: compute rollup: %w", err)
	}
	return snap, nil
}

func (s *PGStore) Upsert(ctx context.Context, tx pgx.Tx, snap Snapshot) error {
	const query = `
		INSERT INTO stat_snapshots (actor_id, role, completed_campaigns, active_campaigns, approved_submissions, rejected_submissions, recalculated_at)
		VALUES ($1, $2::user_role, $3, $4, $5, $6, get_tx_timestamp())
		ON CONFLICT (actor_id) DO UPDATE SET
			completed_campaigns = EXCLUDED.completed_campaigns,
			active_campaigns = EXCLUDED.active_campaigns,
			approved_submissions = EXCLUDED.approved_submissions,
			rejected_submissions = EXCLUDED.rejected_submissions,
			recalculated_at = EXCLUDED.recalculated_at
	`
	if _, err := tx.Exec(ctx, query,
		snap.ActorID,
		snap.Role,
		snap.CompletedCampaigns,
		snap.ActiveCampaigns,
		snap.ApprovedSubmissions,
		snap.RejectedSubmissions,
	); err != nil {
		return fmt.Errorf("stats: upsert snapshot: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, actorID string) (Snapshot, error) {
	const query = `
		SELECT actor_id, role::text, completed_campaigns, active_campaigns, approved_submissions, rejected_submissions, recalculated_at
		FROM stat_snapshots
		WHERE actor_id = $1
	`

	var snap Snapshot
	err := s.pool.QueryRow(ctx, query, actorID).Scan(
		&snap.ActorID,
		&snap.Role,
		&snap.CompletedCampaigns,
		&snap.ActiveCampaigns,
		&snap.ApprovedSubmissions,
		&snap.RejectedSubmissions,
		&snap.RecalculatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("stats: get snapshot: %w", err)
	}
	return snap, nil
}
