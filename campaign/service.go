package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"creatorconnect/account"
)

var (
	// ErrUnauthorized signals the actor lacks the required relation to the campaign.
	ErrUnauthorized = errors.New("campaign: unauthorized")
	// ErrInvalidTransition signals the campaign is not in a state that allows the action.
	ErrInvalidTransition = errors.New("campaign: invalid transition")
)

// Service exposes the campaign command and query surface. Mutations pass the
// access gate first; reads of a single campaign recompute progress on demand
// so callers never observe stale numbers.
type Service struct {
	pool   TxBeginner
	repo   Repository
	engine *Engine
	idGen  func() string
	now    func() time.Time
}

// CreateParams carries brand-supplied campaign attributes.
type CreateParams struct {
	Title                string
	Description          string
	RequiredDeliverables int
	AssetRef             *string
	Draft                bool
}

// ListResult pairs a page of campaigns with the unpaged total.
type ListResult struct {
	Items []Campaign
	Total int
}

func NewService(pool TxBeginner, repo Repository, engine *Engine) *Service {
	return &Service{
		pool:   pool,
		repo:   repo,
		engine: engine,
		idGen:  func() string { return uuid.NewString() },
		now:    time.Now,
	}
}

// WithIDGenerator overrides campaign id generation, used by tests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

// Create opens a new campaign owned by the acting brand.
func (s *Service) Create(ctx context.Context, actor account.Actor, params CreateParams) (Campaign, error) {
	if err := account.CheckAccess(actor); err != nil {
		return Campaign{}, err
	}
	if !actor.Role.IsBrand() {
		return Campaign{}, ErrUnauthorized
	}
	if strings.TrimSpace(params.Title) == "" {
		return Campaign{}, fmt.Errorf("campaign: title required")
	}
	if params.RequiredDeliverables <= 0 {
		return Campaign{}, fmt.Errorf("campaign: required deliverables must be positive")
	}

	status := StatusOpen
	if params.Draft {
		status = StatusDraft
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Campaign{}, fmt.Errorf("campaign: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.Create(ctx, tx, Campaign{
		ID:                   s.idGen(),
		BrandID:              actor.ID,
		Title:                strings.TrimSpace(params.Title),
		Description:          params.Description,
		RequiredDeliverables: params.RequiredDeliverables,
		Status:               status,
		AssetRef:             params.AssetRef,
	})
	if err != nil {
		return Campaign{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Campaign{}, fmt.Errorf("campaign: commit: %w", err)
	}
	return created, nil
}

// Publish moves a draft campaign to open.
func (s *Service) Publish(ctx context.Context, actor account.Actor, campaignID string) (Campaign, error) {
	return s.transition(ctx, actor, campaignID, StatusDraft, StatusOpen)
}

// Cancel terminates a campaign. Completed and already-cancelled campaigns are
// immutable.
func (s *Service) Cancel(ctx context.Context, actor account.Actor, campaignID string) (Campaign, error) {
	if err := account.CheckAccess(actor); err != nil {
		return Campaign{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Campaign{}, fmt.Errorf("campaign: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.repo.GetForUpdate(ctx, tx, campaignID)
	if err != nil {
		return Campaign{}, err
	}
	if c.BrandID != actor.ID && !actor.Role.IsAdmin() {
		return Campaign{}, ErrUnauthorized
	}
	if c.Status == StatusCompleted || c.Status == StatusCancelled {
		return Campaign{}, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, campaignID, c.Status, StatusCancelled, actor.ID)
	if err != nil {
		return Campaign{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Campaign{}, fmt.Errorf("campaign: commit cancel: %w", err)
	}
	return updated, nil
}

func (s *Service) transition(ctx context.Context, actor account.Actor, campaignID string, from, to Status) (Campaign, error) {
	if err := account.CheckAccess(actor); err != nil {
		return Campaign{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Campaign{}, fmt.Errorf("campaign: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.repo.GetForUpdate(ctx, tx, campaignID)
	if err != nil {
		return Campaign{}, err
	}
	if c.BrandID != actor.ID {
		return Campaign{}, ErrUnauthorized
	}
	if c.Status != from {
		return Campaign{}, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, campaignID, from, to, actor.ID)
	if err != nil {
		return Campaign{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Campaign{}, fmt.Errorf("campaign: commit transition: %w", err)
	}
	return updated, nil
}

// Get returns a campaign with guaranteed-fresh progress: the engine recomputes
// before the read so the caller observes its own prior writes.
func (s *Service) Get(ctx context.Context, campaignID string) (Campaign, error) {
	c, err := s.engine.Recompute(ctx, campaignID)
	if err != nil {
		return Campaign{}, err
	}
	return c, nil
}

// List returns campaigns matching the filters. Listing does not recompute;
// per-campaign freshness is only guaranteed by Get.
func (s *Service) List(ctx context.Context, filters Filters) (ListResult, error) {
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total}, nil
}

// ListCompleted returns the brand's completed campaigns.
func (s *Service) ListCompleted(ctx context.Context, brandID string) (ListResult, error) {
	return s.List(ctx, Filters{BrandID: brandID, Status: StatusCompleted})
}

// Members returns the campaign's accepted-creator set.
func (s *Service) Members(ctx context.Context, campaignID string) ([]Member, error) {
	return s.repo.ListMembers(ctx, campaignID)
}

// SweepAll runs the administrative batch recompute over all active campaigns.
func (s *Service) SweepAll(ctx context.Context, actor account.Actor) (SweepReport, error) {
	if err := account.CheckAccess(actor); err != nil {
		return SweepReport{}, err
	}
	if !actor.Role.IsAdmin() {
		return SweepReport{}, ErrUnauthorized
	}
	return s.engine.Sweep(ctx)
}
