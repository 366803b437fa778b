package invitation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"creatorconnect/account"
	"creatorconnect/campaign"
	"creatorconnect/notification"
)

var (
	// ErrUnauthorized signals the actor is not a party to the invitation.
	ErrUnauthorized = errors.New("invitation: unauthorized")
	// ErrCampaignClosed signals the campaign no longer accepts invitations.
	ErrCampaignClosed = errors.New("invitation: campaign not accepting invitations")
	// ErrInviteeNotCreator signals the invited account is not a creator.
	ErrInviteeNotCreator = errors.New("invitation: invitee is not a creator")
	// ErrExpired signals the invitation outlived its TTL before the creator
	// responded. The row has been flipped to expired.
	ErrExpired = errors.New("invitation: expired")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CampaignStore is the slice of the campaign repository the invitation
// machine needs: a locked read to validate ownership and state.
type CampaignStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (campaign.Campaign, error)
}

// AccountStore resolves invitees.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (account.Actor, error)
}

// RecomputeEngine folds a campaign recompute into the acceptance transaction.
type RecomputeEngine interface {
	RecomputeInTx(ctx context.Context, tx pgx.Tx, campaignID string) (campaign.RecomputeResult, error)
	Announce(ctx context.Context, res campaign.RecomputeResult)
}

// Notifier receives committed transitions, fire-and-forget.
type Notifier interface {
	Dispatch(ctx context.Context, ev notification.Event)
}

// Service drives the invitation state machine. All transitions run under the
// invitation row lock; acceptance additionally locks the campaign row so the
// membership insert and the recompute see a consistent snapshot.
type Service struct {
	pool      TxBeginner
	repo      Repository
	campaigns CampaignStore
	accounts  AccountStore
	engine    RecomputeEngine
	notifier  Notifier
	ttl       time.Duration
	now       func() time.Time
}

// DefaultTTL is how long a pending invitation stays answerable.
const DefaultTTL = 7 * 24 * time.Hour

func NewService(pool TxBeginner, repo Repository, campaigns CampaignStore, accounts AccountStore, engine RecomputeEngine) *Service {
	return &Service{
		pool:      pool,
		repo:      repo,
		campaigns: campaigns,
		accounts:  accounts,
		engine:    engine,
		ttl:       DefaultTTL,
		now:       time.Now,
	}
}

// WithNotifier attaches the dispatcher used after commit.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithTTL overrides the pending-invitation lifetime.
func (s *Service) WithTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// WithClock overrides the time source, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create invites a creator to the brand's campaign. A live invitation for the
// same pair already existing surfaces as ErrDuplicate; a declined or expired
// one does not block re-inviting.
func (s *Service) Create(ctx context.Context, actor account.Actor, params CreateParams) (Invitation, error) {
	if err := account.CheckAccess(actor); err != nil {
		return Invitation{}, err
	}
	if !actor.Role.IsBrand() {
		return Invitation{}, ErrUnauthorized
	}

	invitee, err := s.accounts.GetByID(ctx, params.CreatorID)
	if err != nil {
		return Invitation{}, err
	}
	if !invitee.Role.IsCreator() {
		return Invitation{}, ErrInviteeNotCreator
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Invitation{}, fmt.Errorf("invitation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.campaigns.GetForUpdate(ctx, tx, params.CampaignID)
	if err != nil {
		return Invitation{}, err
	}
	if c.BrandID != actor.ID {
		return Invitation{}, ErrUnauthorized
	}
	if c.Status != campaign.StatusOpen && c.Status != campaign.StatusInProgress {
		return Invitation{}, ErrCampaignClosed
	}

	params.Origin = OriginBrand
	inv, err := s.repo.Create(ctx, tx, params)
	if err != nil {
		return Invitation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Invitation{}, fmt.Errorf("invitation: commit: %w", err)
	}

	s.notify(ctx, notification.Event{
		RecipientID: inv.CreatorID,
		Kind:        notification.KindInvitationReceived,
		Payload: map[string]any{
			"invitation_id": inv.ID,
			"campaign_id":   c.ID,
			"title":         c.Title,
			"message":       inv.Message,
		},
	})
	return inv, nil
}

// Apply is the creator-initiated counterpart of Create: the creator asks to
// join an open campaign and the brand answers via Respond. The same unique
// index guards the pair, so an application and an invitation cannot both be
// live at once.
func (s *Service) Apply(ctx context.Context, actor account.Actor, campaignID, message string) (Invitation, error) {
	if err := account.CheckAccess(actor); err != nil {
		return Invitation{}, err
	}
	if !actor.Role.IsCreator() {
		return Invitation{}, ErrUnauthorized
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Invitation{}, fmt.Errorf("invitation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.campaigns.GetForUpdate(ctx, tx, campaignID)
	if err != nil {
		return Invitation{}, err
	}
	if c.Status != campaign.StatusOpen && c.Status != campaign.StatusInProgress {
		return Invitation{}, ErrCampaignClosed
	}

	inv, err := s.repo.Create(ctx, tx, CreateParams{
		CampaignID: campaignID,
		CreatorID:  actor.ID,
		Message:    message,
		Origin:     OriginCreator,
	})
	if err != nil {
		return Invitation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Invitation{}, fmt.Errorf("invitation: commit: %w", err)
	}

	s.notify(ctx, notification.Event{
		RecipientID: inv.BrandID,
		Kind:        notification.KindApplicationReceived,
		Payload: map[string]any{
			"invitation_id": inv.ID,
			"campaign_id":   c.ID,
			"creator_id":    inv.CreatorID,
			"message":       inv.Message,
		},
	})
	return inv, nil
}

// Respond records the counterpart's answer: the creator for a brand
// invitation, the brand for a creator application. Accepting joins the
// campaign and recomputes its progress in the same transaction; a pending row
// older than the TTL is flipped to expired and the answer is rejected.
func (s *Service) Respond(ctx context.Context, actor account.Actor, invitationID string, accept bool) (Invitation, error) {
	if err := account.CheckAccess(actor); err != nil {
		return Invitation{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Invitation{}, fmt.Errorf("invitation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := s.repo.GetForUpdate(ctx, tx, invitationID)
	if err != nil {
		return Invitation{}, err
	}
	if inv.ResponderID() != actor.ID {
		return Invitation{}, ErrUnauthorized
	}
	if inv.Status.Terminal() {
		return Invitation{}, ErrInvalidTransition
	}

	if s.now().Sub(inv.CreatedAt) > s.ttl {
		expired, err := s.repo.UpdateStatus(ctx, tx, invitationID, StatusPending, StatusExpired, actor.ID)
		if err != nil {
			return Invitation{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Invitation{}, fmt.Errorf("invitation: commit expiry: %w", err)
		}
		return expired, ErrExpired
	}

	target := StatusDeclined
	kind := notification.KindInvitationDeclined
	if accept {
		target = StatusAccepted
		kind = notification.KindInvitationAccepted
	}
	if inv.Origin == OriginCreator {
		kind = notification.KindApplicationDeclined
		if accept {
			kind = notification.KindApplicationAccepted
		}
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, invitationID, StatusPending, target, actor.ID)
	if err != nil {
		return Invitation{}, err
	}

	var res campaign.RecomputeResult
	if accept {
		if err := s.repo.AddMember(ctx, tx, inv.CampaignID, inv.CreatorID, inv.ID); err != nil {
			return Invitation{}, err
		}
		res, err = s.engine.RecomputeInTx(ctx, tx, inv.CampaignID)
		if err != nil {
			return Invitation{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Invitation{}, fmt.Errorf("invitation: commit response: %w", err)
	}

	if accept {
		s.engine.Announce(ctx, res)
	}
	s.notify(ctx, notification.Event{
		RecipientID: inv.InitiatorID(),
		Kind:        kind,
		Payload: map[string]any{
			"invitation_id": inv.ID,
			"campaign_id":   inv.CampaignID,
			"creator_id":    inv.CreatorID,
		},
	})
	return updated, nil
}

// Cancel withdraws a pending invitation or application. Only the initiating
// side (or an admin) may withdraw. The row lands in expired so the unique
// index frees the pair for a future re-invite.
func (s *Service) Cancel(ctx context.Context, actor account.Actor, invitationID string) (Invitation, error) {
	if err := account.CheckAccess(actor); err != nil {
		return Invitation{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Invitation{}, fmt.Errorf("invitation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := s.repo.GetForUpdate(ctx, tx, invitationID)
	if err != nil {
		return Invitation{}, err
	}
	if inv.InitiatorID() != actor.ID && !actor.Role.IsAdmin() {
		return Invitation{}, ErrUnauthorized
	}
	if inv.Status != StatusPending {
		return Invitation{}, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, invitationID, StatusPending, StatusExpired, actor.ID)
	if err != nil {
		return Invitation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Invitation{}, fmt.Errorf("invitation: commit cancel: %w", err)
	}
	return updated, nil
}

// ExpireSweep bulk-expires pending invitations older than the TTL and
// returns how many rows were flipped.
func (s *Service) ExpireSweep(ctx context.Context) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("invitation: begin sweep tx: %w", err)
	}
	defer tx.Rollback(ctx)

	n, err := s.repo.ExpirePending(ctx, tx, s.now().Add(-s.ttl))
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("invitation: commit sweep: %w", err)
	}
	return n, nil
}

// Get returns the invitation to one of its parties.
func (s *Service) Get(ctx context.Context, actor account.Actor, invitationID string) (Invitation, error) {
	inv, err := s.repo.Get(ctx, invitationID)
	if err != nil {
		return Invitation{}, err
	}
	if inv.CreatorID != actor.ID && inv.BrandID != actor.ID && !actor.Role.IsAdmin() {
		return Invitation{}, ErrUnauthorized
	}
	return inv, nil
}

// ListForActor returns the invitations the actor is a party to, on the side
// their role implies.
func (s *Service) ListForActor(ctx context.Context, actor account.Actor) ([]Invitation, error) {
	if actor.Role.IsBrand() {
		return s.repo.ListForBrand(ctx, actor.ID)
	}
	return s.repo.ListForCreator(ctx, actor.ID)
}

func (s *Service) notify(ctx context.Context, ev notification.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Dispatch(ctx, ev)
}
