package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"creatorconnect/event"
)

// ProgressInputs is everything the engine needs to derive a campaign's
// progress and status. The campaign row is locked for the duration of the
// transaction, serializing concurrent recomputes per campaign id.
type ProgressInputs struct {
	Campaign         Campaign
	AcceptedCreators int
	ApprovedSlots    int
}

// ApplyRecomputeParams carries a derived progress/status write. The version
// guard rejects stale writes that lost a race to a newer recompute.
type ApplyRecomputeParams struct {
	CampaignID      string
	FromStatus      Status
	ToStatus        Status
	Progress        int
	ExpectedVersion int64
}

// EngineStore is the persistence surface of the progress engine.
type EngineStore interface {
	LoadForRecompute(ctx context.Context, tx pgx.Tx, campaignID string) (ProgressInputs, error)
	ApplyRecompute(ctx context.Context, tx pgx.Tx, params ApplyRecomputeParams) (Campaign, error)
	ListRecomputable(ctx context.Context) ([]string, error)
}

func (r *PGRepository) LoadForRecompute(ctx context.Context, tx pgx.Tx, campaignID string) (ProgressInputs, error) {
	c, err := r.GetForUpdate(ctx, tx, campaignID)
	if err != nil {
		return ProgressInputs{}, err
	}

	var accepted int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM campaign_creators WHERE campaign_id = $1`, campaignID).Scan(&accepted); err != nil {
		return ProgressInputs{}, fmt.Errorf("campaign: count accepted creators: %w", err)
	}

	// A slot counts as approved only when its latest attempt is approved, so
	// a rejected resubmission reopens the slot.
	const approvedSQL = `
		SELECT COUNT(*) FROM (
			SELECT DISTINCT ON (creator_id, slot_no) status
			FROM content_submissions
			WHERE campaign_id = $1
			ORDER BY creator_id, slot_no, attempt DESC
		) latest
		WHERE status = 'approved'
	`
	var approved int
	if err := tx.QueryRow(ctx, approvedSQL, campaignID).Scan(&approved); err != nil {
		return ProgressInputs{}, fmt.Errorf("campaign: count approved slots: %w", err)
	}

	return ProgressInputs{
		Campaign:         c,
		AcceptedCreators: accepted,
		ApprovedSlots:    approved,
	}, nil
}

func (r *PGRepository) ApplyRecompute(ctx context.Context, tx pgx.Tx, params ApplyRecomputeParams) (Campaign, error) {
	query := fmt.Sprintf(`
		UPDATE campaigns
		SET progress = $2,
		    status = $3,
		    version = version + 1,
		    updated_at = get_tx_timestamp()
		WHERE id = $1 AND version = $4
		RETURNING %s
	`, campaignColumns)

	c, err := scanCampaign(tx.QueryRow(ctx, query, params.CampaignID, params.Progress, params.ToStatus, params.ExpectedVersion))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, ErrConcurrentModification
		}
		return Campaign{}, fmt.Errorf("campaign: apply recompute: %w", err)
	}

	if params.ToStatus != params.FromStatus {
		if err := event.Append(ctx, tx, event.Transition{
			EntityType: "campaign",
			EntityID:   params.CampaignID,
			FromState:  string(params.FromStatus),
			ToState:    string(params.ToStatus),
			Payload:    map[string]any{"progress": params.Progress},
		}); err != nil {
			return Campaign{}, err
		}
	}

	return c, nil
}

func (r *PGRepository) ListRecomputable(ctx context.Context) ([]string, error) {
	const query = `
		SELECT id FROM campaigns
		WHERE status IN ('open', 'in_progress')
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("campaign: list recomputable: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("campaign: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign: iterate ids: %w", err)
	}
	return ids, nil
}
