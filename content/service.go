package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"creatorconnect/account"
	"creatorconnect/campaign"
	"creatorconnect/notification"
)

var (
	// ErrUnauthorized signals the actor is not a party to the submission.
	ErrUnauthorized = errors.New("content: unauthorized")
	// ErrCampaignClosed signals the campaign no longer accepts submissions.
	ErrCampaignClosed = errors.New("content: campaign not accepting submissions")
	// ErrSlotOutOfRange signals slot_no outside 1..required_deliverables.
	ErrSlotOutOfRange = errors.New("content: slot out of range")
	// ErrAwaitingReview signals the slot's latest attempt has not been
	// reviewed yet.
	ErrAwaitingReview = errors.New("content: slot awaiting review")
	// ErrResubmissionLimit signals the slot exhausted its resubmission cap.
	ErrResubmissionLimit = errors.New("content: resubmission limit exceeded")
	// ErrReasonRequired signals a rejection without a reason.
	ErrReasonRequired = errors.New("content: rejection reason required")
	// ErrMissingArtifact signals a submission without file data or reference.
	ErrMissingArtifact = errors.New("content: artifact required")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CampaignStore is the slice of the campaign repository the review machine
// needs.
type CampaignStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (campaign.Campaign, error)
}

// RecomputeEngine folds a campaign recompute into the review transaction.
type RecomputeEngine interface {
	RecomputeInTx(ctx context.Context, tx pgx.Tx, campaignID string) (campaign.RecomputeResult, error)
	Announce(ctx context.Context, res campaign.RecomputeResult)
}

// Notifier receives committed transitions, fire-and-forget.
type Notifier interface {
	Dispatch(ctx context.Context, ev notification.Event)
}

// DefaultMaxResubmissions bounds attempts per slot: the first submission plus
// this many resubmissions.
const DefaultMaxResubmissions = 3

// Service drives the submit/review state machine. The campaign row lock is
// taken before any slot read so submits, reviews and recomputes for one
// campaign serialize in a single order.
type Service struct {
	pool             TxBeginner
	repo             Repository
	campaigns        CampaignStore
	engine           RecomputeEngine
	notifier         Notifier
	files            FileStore
	maxResubmissions int
	now              func() time.Time
}

func NewService(pool TxBeginner, repo Repository, campaigns CampaignStore, engine RecomputeEngine) *Service {
	return &Service{
		pool:             pool,
		repo:             repo,
		campaigns:        campaigns,
		engine:           engine,
		maxResubmissions: DefaultMaxResubmissions,
		now:              time.Now,
	}
}

// WithNotifier attaches the dispatcher used after commit.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithFileStore attaches the artifact store used when SubmitParams carries
// raw data.
func (s *Service) WithFileStore(fs FileStore) *Service {
	s.files = fs
	return s
}

// WithMaxResubmissions overrides the per-slot resubmission cap.
func (s *Service) WithMaxResubmissions(n int) *Service {
	if n >= 0 {
		s.maxResubmissions = n
	}
	return s
}

// Submit records a deliverable for one slot. The first attempt opens the
// slot; further attempts are allowed only once the previous one has been
// reviewed, so an approved slot can still be replaced (and a rejection of the
// replacement reopens it).
func (s *Service) Submit(ctx context.Context, actor account.Actor, params SubmitParams) (Submission, error) {
	if err := account.CheckAccess(actor); err != nil {
		return Submission{}, err
	}
	if !actor.Role.IsCreator() {
		return Submission{}, ErrUnauthorized
	}

	fileRef := params.FileRef
	if params.Data != nil {
		if s.files == nil {
			return Submission{}, ErrMissingArtifact
		}
		key := fmt.Sprintf("%s/%s/slot-%d/%s", params.CampaignID, actor.ID, params.SlotNo, params.FileName)
		ref, err := s.files.Save(ctx, key, params.Data)
		if err != nil {
			return Submission{}, err
		}
		fileRef = ref
	}
	if fileRef == "" {
		return Submission{}, ErrMissingArtifact
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Submission{}, fmt.Errorf("content: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.campaigns.GetForUpdate(ctx, tx, params.CampaignID)
	if err != nil {
		return Submission{}, err
	}
	switch c.Status {
	case campaign.StatusDraft, campaign.StatusCancelled:
		return Submission{}, ErrCampaignClosed
	}
	if params.SlotNo < 1 || params.SlotNo > c.RequiredDeliverables {
		return Submission{}, ErrSlotOutOfRange
	}

	invitationID, err := s.repo.Membership(ctx, tx, params.CampaignID, actor.ID)
	if err != nil {
		return Submission{}, err
	}

	attempt := 1
	latest, exists, err := s.repo.LatestForSlot(ctx, tx, params.CampaignID, actor.ID, params.SlotNo)
	if err != nil {
		return Submission{}, err
	}
	if exists {
		if latest.Status == StatusSubmitted {
			return Submission{}, ErrAwaitingReview
		}
		if latest.Attempt > s.maxResubmissions {
			return Submission{}, ErrResubmissionLimit
		}
		attempt = latest.Attempt + 1
	}

	created, err := s.repo.Insert(ctx, tx, Submission{
		CampaignID:   params.CampaignID,
		CreatorID:    actor.ID,
		InvitationID: invitationID,
		SlotNo:       params.SlotNo,
		Attempt:      attempt,
		FileRef:      fileRef,
		Caption:      params.Caption,
	})
	if err != nil {
		return Submission{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Submission{}, fmt.Errorf("content: commit submit: %w", err)
	}

	s.notify(ctx, notification.Event{
		RecipientID: c.BrandID,
		Kind:        notification.KindContentSubmitted,
		Payload: map[string]any{
			"submission_id": created.ID,
			"campaign_id":   created.CampaignID,
			"creator_id":    created.CreatorID,
			"slot_no":       created.SlotNo,
			"attempt":       created.Attempt,
		},
	})
	return created, nil
}

// Review closes a submitted record. Both verdicts recompute the campaign in
// the same transaction: approval can complete it, a rejected resubmission can
// reopen a previously approved slot.
func (s *Service) Review(ctx context.Context, actor account.Actor, submissionID string, approve bool, reason string) (Submission, error) {
	if err := account.CheckAccess(actor); err != nil {
		return Submission{}, err
	}
	reason = strings.TrimSpace(reason)
	if !approve && reason == "" {
		return Submission{}, ErrReasonRequired
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Submission{}, fmt.Errorf("content: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sub, err := s.repo.GetForUpdate(ctx, tx, submissionID)
	if err != nil {
		return Submission{}, err
	}

	c, err := s.campaigns.GetForUpdate(ctx, tx, sub.CampaignID)
	if err != nil {
		return Submission{}, err
	}
	if c.BrandID != actor.ID {
		return Submission{}, ErrUnauthorized
	}
	if sub.Status != StatusSubmitted {
		return Submission{}, ErrInvalidTransition
	}

	target := StatusRejected
	kind := notification.KindContentRejected
	var reasonPtr *string
	if approve {
		target = StatusApproved
		kind = notification.KindContentApproved
	} else {
		reasonPtr = &reason
	}

	reviewed, err := s.repo.Review(ctx, tx, submissionID, target, reasonPtr, actor.ID)
	if err != nil {
		return Submission{}, err
	}

	res, err := s.engine.RecomputeInTx(ctx, tx, sub.CampaignID)
	if err != nil {
		return Submission{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Submission{}, fmt.Errorf("content: commit review: %w", err)
	}

	s.engine.Announce(ctx, res)

	payload := map[string]any{
		"submission_id": reviewed.ID,
		"campaign_id":   reviewed.CampaignID,
		"slot_no":       reviewed.SlotNo,
	}
	if !approve {
		payload["reason"] = reason
	}
	s.notify(ctx, notification.Event{
		RecipientID: reviewed.CreatorID,
		Kind:        kind,
		Payload:     payload,
	})
	return reviewed, nil
}

// ListForCampaign returns a campaign's submissions to either party.
func (s *Service) ListForCampaign(ctx context.Context, actor account.Actor, campaignID string) ([]Submission, error) {
	subs, err := s.repo.ListForCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// ListPendingForBrand returns the brand's review queue, oldest first.
func (s *Service) ListPendingForBrand(ctx context.Context, brandID string) ([]Submission, error) {
	return s.repo.ListPendingForBrand(ctx, brandID)
}

func (s *Service) notify(ctx context.Context, ev notification.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Dispatch(ctx, ev)
}
