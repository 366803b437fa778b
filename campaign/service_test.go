package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"creatorconnect/account"
)

func brandActor(id string) account.Actor {
	return account.Actor{ID: id, Role: account.RoleBrand}
}

func TestCreate_BrandOpensCampaign(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeCampaignRepo{}
	svc := NewService(pool, repo, nil).WithIDGenerator(func() string { return "camp-1" })

	c, err := svc.Create(context.Background(), brandActor("brand-1"), CreateParams{
		Title:                "Summer launch",
		RequiredDeliverables: 3,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if c.ID != "camp-1" || c.BrandID != "brand-1" {
		t.Errorf("unexpected campaign %+v", c)
	}
	if c.Status != StatusOpen {
		t.Errorf("status = %s, want open", c.Status)
	}
	if !pool.tx.committed {
		t.Error("expected commit")
	}
}

func TestCreate_DraftStaysDraft(t *testing.T) {
	svc := NewService(&fakePool{}, &fakeCampaignRepo{}, nil)

	c, err := svc.Create(context.Background(), brandActor("brand-1"), CreateParams{
		Title:                "Quiet prep",
		RequiredDeliverables: 1,
		Draft:                true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Status != StatusDraft {
		t.Errorf("status = %s, want draft", c.Status)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := NewService(&fakePool{}, &fakeCampaignRepo{}, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, brandActor("brand-1"), CreateParams{Title: "  ", RequiredDeliverables: 1}); err == nil {
		t.Error("expected error for blank title")
	}
	if _, err := svc.Create(ctx, brandActor("brand-1"), CreateParams{Title: "ok", RequiredDeliverables: 0}); err == nil {
		t.Error("expected error for zero deliverables")
	}

	creator := account.Actor{ID: "creator-1", Role: account.RoleCreator}
	if _, err := svc.Create(ctx, creator, CreateParams{Title: "ok", RequiredDeliverables: 1}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for creator, got %v", err)
	}
}

func TestCreate_GatedActor(t *testing.T) {
	svc := NewService(&fakePool{}, &fakeCampaignRepo{}, nil)
	banned := brandActor("brand-1")
	when := time.Now()
	banned.BannedAt = &when

	var denied *account.AccessDenied
	_, err := svc.Create(context.Background(), banned, CreateParams{Title: "x", RequiredDeliverables: 1})
	if !errors.As(err, &denied) {
		t.Fatalf("expected AccessDenied, got %v", err)
	}
	if denied.Kind != account.DenialBanned {
		t.Errorf("kind = %s, want banned", denied.Kind)
	}
}

func TestPublish(t *testing.T) {
	repo := &fakeCampaignRepo{
		byID: map[string]Campaign{
			"camp-1": {ID: "camp-1", BrandID: "brand-1", Status: StatusDraft},
		},
	}
	svc := NewService(&fakePool{}, repo, nil)

	c, err := svc.Publish(context.Background(), brandActor("brand-1"), "camp-1")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if c.Status != StatusOpen {
		t.Errorf("status = %s, want open", c.Status)
	}

	// Republishing is no longer a draft transition.
	if _, err := svc.Publish(context.Background(), brandActor("brand-1"), "camp-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	if _, err := svc.Publish(context.Background(), brandActor("brand-2"), "camp-1"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for foreign brand, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	repo := &fakeCampaignRepo{
		byID: map[string]Campaign{
			"camp-1": {ID: "camp-1", BrandID: "brand-1", Status: StatusInProgress},
			"camp-2": {ID: "camp-2", BrandID: "brand-1", Status: StatusCompleted},
		},
	}
	svc := NewService(&fakePool{}, repo, nil)
	ctx := context.Background()

	c, err := svc.Cancel(ctx, brandActor("brand-1"), "camp-1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if c.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", c.Status)
	}

	if _, err := svc.Cancel(ctx, brandActor("brand-1"), "camp-2"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("completed campaign must be immutable, got %v", err)
	}
	if _, err := svc.Cancel(ctx, brandActor("brand-1"), "camp-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancelled campaign must be immutable, got %v", err)
	}

	admin := account.Actor{ID: "admin-1", Role: account.RoleAdmin}
	repo.byID["camp-3"] = Campaign{ID: "camp-3", BrandID: "brand-1", Status: StatusOpen}
	if _, err := svc.Cancel(ctx, admin, "camp-3"); err != nil {
		t.Errorf("admin cancel should succeed, got %v", err)
	}
}

func TestGet_RecomputesBeforeRead(t *testing.T) {
	store := &fakeEngineStore{
		inputs: ProgressInputs{
			Campaign: Campaign{
				ID:                   "camp-1",
				BrandID:              "brand-1",
				RequiredDeliverables: 2,
				Status:               StatusInProgress,
				Progress:             0,
				Version:              1,
			},
			AcceptedCreators: 1,
			ApprovedSlots:    1,
		},
	}
	engine := NewEngine(&fakePool{}, store)
	svc := NewService(&fakePool{}, &fakeCampaignRepo{}, engine)

	c, err := svc.Get(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.Progress != 50 {
		t.Errorf("progress = %d, want 50 after recompute-on-read", c.Progress)
	}
	if store.applied == nil {
		t.Error("expected Get to recompute")
	}
}

func TestSweepAll_AdminOnly(t *testing.T) {
	engine := NewEngine(&fakePool{}, &fakeEngineStore{})
	svc := NewService(&fakePool{}, &fakeCampaignRepo{}, engine)

	if _, err := svc.SweepAll(context.Background(), brandActor("brand-1")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	admin := account.Actor{ID: "admin-1", Role: account.RoleAdmin}
	if _, err := svc.SweepAll(context.Background(), admin); err != nil {
		t.Fatalf("admin sweep: %v", err)
	}
}

type fakeCampaignRepo struct {
	byID      map[string]Campaign
	createErr error
}

func (f *fakeCampaignRepo) Create(ctx context.Context, tx pgx.Tx, c Campaign) (Campaign, error) {
	if f.createErr != nil {
		return Campaign{}, f.createErr
	}
	if f.byID == nil {
		f.byID = map[string]Campaign{}
	}
	f.byID[c.ID] = c
	return c, nil
}

func (f *fakeCampaignRepo) Get(ctx context.Context, id string) (Campaign, error) {
	c, ok := f.byID[id]
	if !ok {
		return Campaign{}, ErrNotFound
	}
	return c, nil
}

func (f *fakeCampaignRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Campaign, error) {
	return f.Get(ctx, id)
}

func (f *fakeCampaignRepo) List(ctx context.Context, filters Filters) ([]Campaign, int, error) {
	list := []Campaign{}
	for _, c := range f.byID {
		if filters.BrandID != "" && c.BrandID != filters.BrandID {
			continue
		}
		if filters.Status != "" && c.Status != filters.Status {
			continue
		}
		list = append(list, c)
	}
	return list, len(list), nil
}

func (f *fakeCampaignRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, from, to Status, actorID string) (Campaign, error) {
	c, ok := f.byID[id]
	if !ok {
		return Campaign{}, ErrNotFound
	}
	if c.Status != from {
		return Campaign{}, ErrConcurrentModification
	}
	c.Status = to
	c.Version++
	f.byID[id] = c
	return c, nil
}

func (f *fakeCampaignRepo) ListMembers(ctx context.Context, campaignID string) ([]Member, error) {
	return nil, nil
}
