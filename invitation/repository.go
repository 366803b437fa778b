package invitation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"creatorconnect/event"
)

var (
	// ErrNotFound signals the invitation does not exist.
	ErrNotFound = errors.New("invitation: not found")
	// ErrDuplicate signals a live invitation already exists for the
	// (campaign, creator) pair. Declined and expired rows do not count.
	ErrDuplicate = errors.New("invitation: duplicate live invitation")
	// ErrInvalidTransition signals the invitation is no longer in the state
	// the caller observed. Terminal states are immutable.
	ErrInvalidTransition = errors.New("invitation: invalid transition")
)

// Repository is the data access surface for invitations.
type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, params CreateParams) (Invitation, error)
	Get(ctx context.Context, id string) (Invitation, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Invitation, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, from, to Status, actorID string) (Invitation, error)
	AddMember(ctx context.Context, tx pgx.Tx, campaignID, creatorID, invitationID string) error
	ListForCreator(ctx context.Context, creatorID string) ([]Invitation, error)
	ListForBrand(ctx context.Context, brandID string) ([]Invitation, error)
	ExpirePending(ctx context.Context, tx pgx.Tx, olderThan time.Time) (int, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const invitationColumns = `i.id, i.campaign_id, c.brand_id, i.creator_id, i.origin::text, i.status::text, i.message, i.responded_at, i.created_at, i.updated_at`

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, params CreateParams) (Invitation, error) {
	origin := params.Origin
	if origin == "" {
		origin = OriginBrand
	}

	const query = `
		WITH inserted AS (
			INSERT INTO invitations (campaign_id, creator_id, message, origin)
			VALUES ($1, $2, $3, $4::invitation_origin)
			RETURNING id, campaign_id, creator_id, origin, status, message, responded_at, created_at, updated_at
		)
		SELECT i.id, i.campaign_id, c.brand_id, i.creator_id, i.origin::text, i.status::text, i.message, i.responded_at, i.created_at, i.updated_at
		FROM inserted i
		JOIN campaigns c ON c.id = i.campaign_id
	`

	inv, err := scanInvitation(tx.QueryRow(ctx, query, params.CampaignID, params.CreatorID, params.Message, origin))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Invitation{}, ErrDuplicate
		}
		return Invitation{}, fmt.Errorf("invitation: insert: %w", err)
	}

	initiator := inv.InitiatorID()
	if err := event.Append(ctx, tx, event.Transition{
		EntityType: "invitation",
		EntityID:   inv.ID,
		FromState:  "",
		ToState:    string(StatusPending),
		ActorID:    &initiator,
		Payload:    map[string]any{"campaign_id": inv.CampaignID, "creator_id": inv.CreatorID, "origin": string(inv.Origin)},
	}); err != nil {
		return Invitation{}, err
	}

	return inv, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Invitation, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM invitations i
		JOIN campaigns c ON c.id = i.campaign_id
		WHERE i.id = $1
	`, invitationColumns)

	inv, err := scanInvitation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invitation{}, ErrNotFound
		}
		return Invitation{}, fmt.Errorf("invitation: get: %w", err)
	}
	return inv, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Invitation, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM invitations i
		JOIN campaigns c ON c.id = i.campaign_id
		WHERE i.id = $1
		FOR UPDATE OF i
	`, invitationColumns)

	inv, err := scanInvitation(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invitation{}, ErrNotFound
		}
		return Invitation{}, fmt.Errorf("invitation: get for update: %w", err)
	}
	return inv, nil
}

// UpdateStatus applies a guarded transition and records it. A vanished `from`
// state means another transaction won the race.
func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, from, to Status, actorID string) (Invitation, error) {
	const query = `
		WITH updated AS (
			UPDATE invitations
			SET status = $2::invitation_status,
			    responded_at = get_tx_timestamp(),
			    updated_at = get_tx_timestamp()
			WHERE id = $1 AND status = $3::invitation_status
			RETURNING id, campaign_id, creator_id, origin, status, message, responded_at, created_at, updated_at
		)
		SELECT i.id, i.campaign_id, c.brand_id, i.creator_id, i.origin::text, i.status::text, i.message, i.responded_at, i.created_at, i.updated_at
		FROM updated i
		JOIN campaigns c ON c.id = i.campaign_id
	`

	inv, err := scanInvitation(tx.QueryRow(ctx, query, id, to, from))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invitation{}, ErrInvalidTransition
		}
		return Invitation{}, fmt.Errorf("invitation: update status: %w", err)
	}

	if err := event.Append(ctx, tx, event.Transition{
		EntityType: "invitation",
		EntityID:   id,
		FromState:  string(from),
		ToState:    string(to),
		ActorID:    &actorID,
	}); err != nil {
		return Invitation{}, err
	}

	return inv, nil
}

func (r *PGRepository) AddMember(ctx context.Context, tx pgx.Tx, campaignID, creatorID, invitationID string) error {
	const query = `
		INSERT INTO campaign_creators (campaign_id, creator_id, invitation_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (campaign_id, creator_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, query, campaignID, creatorID, invitationID); err != nil {
		return fmt.Errorf("invitation: add member: %w", err)
	}
	return nil
}

func (r *PGRepository) ListForCreator(ctx context.Context, creatorID string) ([]Invitation, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM invitations i
		JOIN campaigns c ON c.id = i.campaign_id
		WHERE i.creator_id = $1
		ORDER BY i.created_at DESC
	`, invitationColumns)
	return r.list(ctx, query, creatorID)
}

func (r *PGRepository) ListForBrand(ctx context.Context, brandID string) ([]Invitation, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM invitations i
		JOIN campaigns c ON c.id = i.campaign_id
		WHERE c.brand_id = $1
		ORDER BY i.created_at DESC
	`, invitationColumns)
	return r.list(ctx, query, brandID)
}

func (r *PGRepository) list(ctx context.Context, query string, args ...any) ([]Invitation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("invitation: list: %w", err)
	}
	defer rows.Close()

	out := make([]Invitation, 0, 8)
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("invitation: scan: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("invitation: iterate: %w", err)
	}
	return out, nil
}

// ExpirePending flips every pending invitation created before the cutoff to
// expired and records a transition event per row.
func (r *PGRepository) ExpirePending(ctx context.Context, tx pgx.Tx, olderThan time.Time) (int, error) {
	const query = `
		UPDATE invitations
		SET status = 'expired',
		    updated_at = get_tx_timestamp()
		WHERE status = 'pending' AND created_at < $1
		RETURNING id
	`

	rows, err := tx.Query(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("invitation: expire pending: %w", err)
	}
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("invitation: scan expired id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("invitation: iterate expired ids: %w", err)
	}

	for _, id := range ids {
		if err := event.Append(ctx, tx, event.Transition{
			EntityType: "invitation",
			EntityID:   id,
			FromState:  string(StatusPending),
			ToState:    string(StatusExpired),
		}); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func scanInvitation(row pgx.Row) (Invitation, error) {
	var inv Invitation
	return inv, row.Scan(
		&inv.ID,
		&inv.CampaignID,
		&inv.BrandID,
		&inv.CreatorID,
		&inv.Origin,
		&inv.Status,
		&inv.Message,
		&inv.RespondedAt,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
}
