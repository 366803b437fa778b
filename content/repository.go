package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"creatorconnect/event"
)

var (
	// ErrNotFound signals the submission does not exist.
	ErrNotFound = errors.New("content: not found")
	// ErrNotMember signals the creator holds no accepted invitation for the
	// campaign.
	ErrNotMember = errors.New("content: creator is not a campaign member")
	// ErrDuplicateAttempt signals a concurrent submit won the same attempt
	// number for the slot.
	ErrDuplicateAttempt = errors.New("content: duplicate attempt")
	// ErrInvalidTransition signals the submission is no longer reviewable.
	ErrInvalidTransition = errors.New("content: invalid transition")
)

// Repository is the data access surface for content submissions.
type Repository interface {
	Membership(ctx context.Context, tx pgx.Tx, campaignID, creatorID string) (string, error)
	LatestForSlot(ctx context.Context, tx pgx.Tx, campaignID, creatorID string, slotNo int) (Submission, bool, error)
	Insert(ctx context.Context, tx pgx.Tx, sub Submission) (Submission, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Submission, error)
	Review(ctx context.Context, tx pgx.Tx, id string, to Status, reason *string, actorID string) (Submission, error)
	ListForCampaign(ctx context.Context, campaignID string) ([]Submission, error)
	ListPendingForBrand(ctx context.Context, brandID string) ([]Submission, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const submissionColumns = `id, campaign_id, creator_id, invitation_id, slot_no, attempt, file_ref, caption, status::text, rejection_reason, submitted_at, reviewed_at`

// Membership returns the invitation id backing the creator's accepted
// membership in the campaign.
func (r *PGRepository) Membership(ctx context.Context, tx pgx.Tx, campaignID, creatorID string) (string, error) {
	var invitationID string
	err := tx.QueryRow(ctx,
		`SELECT invitation_id FROM campaign_creators WHERE campaign_id = $1 AND creator_id = $2`,
		campaignID, creatorID,
	).Scan(&invitationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotMember
		}
		return "", fmt.Errorf("content: check membership: %w", err)
	}
	return invitationID, nil
}

// LatestForSlot locks and returns the slot's highest attempt, if any. The
// lock serializes concurrent resubmissions of the same slot.
func (r *PGRepository) LatestForSlot(ctx context.Context, tx pgx.Tx, campaignID, creatorID string, slotNo int) (Submission, bool, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM content_submissions
		WHERE campaign_id = $1 AND creator_id = $2 AND slot_no = $3
		ORDER BY attempt DESC
		LIMIT 1
		FOR UPDATE
	`, submissionColumns)

	sub, err := scanSubmission(tx.QueryRow(ctx, query, campaignID, creatorID, slotNo))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Submission{}, false, nil
		}
		return Submission{}, false, fmt.Errorf("content: latest for slot: %w", err)
	}
	return sub, true, nil
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, sub Submission) (Submission, error) {
	query := fmt.Sprintf(`
		INSERT INTO content_submissions (campaign_id, creator_id, invitation_id, slot_no, attempt, file_ref, caption)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING %s
	`, submissionColumns)

	created, err := scanSubmission(tx.QueryRow(ctx, query,
		sub.CampaignID,
		sub.CreatorID,
		sub.InvitationID,
		sub.SlotNo,
		sub.Attempt,
		sub.FileRef,
		sub.Caption,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Submission{}, ErrDuplicateAttempt
		}
		return Submission{}, fmt.Errorf("content: insert: %w", err)
	}

	if err := event.Append(ctx, tx, event.Transition{
		EntityType: "submission",
		EntityID:   created.ID,
		FromState:  "",
		ToState:    string(StatusSubmitted),
		ActorID:    &created.CreatorID,
		Payload: map[string]any{
			"campaign_id": created.CampaignID,
			"slot_no":     created.SlotNo,
			"attempt":     created.Attempt,
		},
	}); err != nil {
		return Submission{}, err
	}

	return created, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM content_submissions WHERE id = $1 FOR UPDATE`, submissionColumns)
	sub, err := scanSubmission(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Submission{}, ErrNotFound
		}
		return Submission{}, fmt.Errorf("content: get for update: %w", err)
	}
	return sub, nil
}

// Review closes a submitted record. The status guard makes a lost race
// surface as an invalid transition rather than a double review.
func (r *PGRepository) Review(ctx context.Context, tx pgx.Tx, id string, to Status, reason *string, actorID string) (Submission, error) {
	query := fmt.Sprintf(`
		UPDATE content_submissions
		SET status = $2::submission_status,
		    rejection_reason = $3,
		    reviewed_at = get_tx_timestamp()
		WHERE id = $1 AND status = 'submitted'
		RETURNING %s
	`, submissionColumns)

	sub, err := scanSubmission(tx.QueryRow(ctx, query, id, to, reason))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Submission{}, ErrInvalidTransition
		}
		return Submission{}, fmt.Errorf("content: review: %w", err)
	}

	payload := map[string]any{"slot_no": sub.SlotNo, "attempt": sub.Attempt}
	if reason != nil {
		payload["reason"] = *reason
	}
	if err := event.Append(ctx, tx, event.Transition{
		EntityType: "submission",
		EntityID:   id,
		FromState:  string(StatusSubmitted),
		ToState:    string(to),
		ActorID:    &actorID,
		Payload:    payload,
	}); err != nil {
		return Submission{}, err
	}

	return sub, nil
}

func (r *PGRepository) ListForCampaign(ctx context.Context, campaignID string) ([]Submission, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM content_submissions
		WHERE campaign_id = $1
		ORDER BY slot_no ASC, attempt ASC
	`, submissionColumns)
	return r.list(ctx, query, campaignID)
}

// ListPendingForBrand returns the review queue across all of the brand's
// campaigns, oldest first.
func (r *PGRepository) ListPendingForBrand(ctx context.Context, brandID string) ([]Submission, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM content_submissions s
		WHERE s.status = 'submitted'
		  AND s.campaign_id IN (SELECT id FROM campaigns WHERE brand_id = $1)
		ORDER BY s.submitted_at ASC
	`, columnsWithAlias("s"))
	return r.list(ctx, query, brandID)
}

func columnsWithAlias(alias string) string {
	return fmt.Sprintf(
		`%[1]s.id, %[1]s.campaign_id, %[1]s.creator_id, %[1]s.invitation_id, %[1]s.slot_no, %[1]s.attempt, %[1]s.file_ref, %[1]s.caption, %[1]s.status::text, %[1]s.rejection_reason, %[1]s.submitted_at, %[1]s.reviewed_at`,
		alias,
	)
}

func (r *PGRepository) list(ctx context.Context, query string, args ...any) ([]Submission, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("content: list: %w", err)
	}
	defer rows.Close()

	out := make([]Submission, 0, 8)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("content: scan: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("content: iterate: %w", err)
	}
	return out, nil
}

func scanSubmission(row pgx.Row) (Submission, error) {
	var s Submission
	return s, row.Scan(
		&s.ID,
		&s.CampaignID,
		&s.CreatorID,
		&s.InvitationID,
		&s.SlotNo,
		&s.Attempt,
		&s.FileRef,
		&s.Caption,
		&s.Status,
		&s.RejectionReason,
		&s.SubmittedAt,
		&s.ReviewedAt,
	)
}
