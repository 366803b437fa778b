package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"creatorconnect/account"
)

func admin() account.Actor { return account.Actor{ID: "admin-1", Role: account.RoleAdmin} }

func TestRebuildActor(t *testing.T) {
	store := &fakeStatsStore{
		rollups: map[string]Snapshot{
			"brand-1": {ActorID: "brand-1", Role: account.RoleBrand, CompletedCampaigns: 2, ActiveCampaigns: 1},
		},
	}
	pool := &fakePool{}
	rec := NewRecalculator(pool, store)

	snap, err := rec.RebuildActor(context.Background(), ActorRef{ID: "brand-1", Role: account.RoleBrand})
	if err != nil {
		t.Fatalf("RebuildActor: %v", err)
	}

	if snap.CompletedCampaigns != 2 {
		t.Errorf("completed = %d, want 2", snap.CompletedCampaigns)
	}
	if len(store.upserted) != 1 || store.upserted[0].ActorID != "brand-1" {
		t.Errorf("upserted = %+v", store.upserted)
	}
	if !pool.tx.committed {
		t.Error("expected commit")
	}
}

func TestRebuildActor_FailureRollsBack(t *testing.T) {
	store := &fakeStatsStore{upsertErr: errors.New("disk full")}
	pool := &fakePool{}
	rec := NewRecalculator(pool, store)

	if _, err := rec.RebuildActor(context.Background(), ActorRef{ID: "brand-1", Role: account.RoleBrand}); err == nil {
		t.Fatal("expected error")
	}
	if pool.tx.committed {
		t.Error("failed rebuild must not commit")
	}
}

func TestRebuildAll_IsolatesFailures(t *testing.T) {
	store := &fakeStatsStore{
		actors: []ActorRef{
			{ID: "brand-1", Role: account.RoleBrand},
			{ID: "creator-1", Role: account.RoleCreator},
			{ID: "creator-2", Role: account.RoleCreator},
		},
		computeErrs: map[string]error{"creator-1": errors.New("corrupted row")},
	}
	rec := NewRecalculator(&fakePool{}, store).WithConcurrency(1)

	report, err := rec.RebuildAll(context.Background(), admin())
	if err != nil {
		t.Fatalf("RebuildAll: %v", err)
	}

	if report.Scanned != 3 {
		t.Errorf("scanned = %d, want 3", report.Scanned)
	}
	if report.Rebuilt != 2 {
		t.Errorf("rebuilt = %d, want 2", report.Rebuilt)
	}
	if len(report.Errors) != 1 || report.Errors[0].ActorID != "creator-1" {
		t.Fatalf("unexpected error set %+v", report.Errors)
	}
}

func TestRebuildAll_AdminOnly(t *testing.T) {
	rec := NewRecalculator(&fakePool{}, &fakeStatsStore{})
	brand := account.Actor{ID: "brand-1", Role: account.RoleBrand}

	if _, err := rec.RebuildAll(context.Background(), brand); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSnapshot_Visibility(t *testing.T) {
	store := &fakeStatsStore{
		snapshots: map[string]Snapshot{
			"creator-1": {ActorID: "creator-1", Role: account.RoleCreator, ApprovedSubmissions: 5, RecalculatedAt: time.Now()},
		},
	}
	rec := NewRecalculator(&fakePool{}, store)
	ctx := context.Background()

	self := account.Actor{ID: "creator-1", Role: account.RoleCreator}
	if _, err := rec.Snapshot(ctx, self, "creator-1"); err != nil {
		t.Errorf("self read: %v", err)
	}
	if _, err := rec.Snapshot(ctx, admin(), "creator-1"); err != nil {
		t.Errorf("admin read: %v", err)
	}

	other := account.Actor{ID: "creator-2", Role: account.RoleCreator}
	if _, err := rec.Snapshot(ctx, other, "creator-1"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	if _, err := rec.Snapshot(ctx, admin(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

type fakeStatsStore struct {
	actors      []ActorRef
	rollups     map[string]Snapshot
	snapshots   map[string]Snapshot
	computeErrs map[string]error
	upsertErr   error
	upserted    []Snapshot
}

func (f *fakeStatsStore) ListActors(ctx context.Context) ([]ActorRef, error) {
	return f.actors, nil
}

func (f *fakeStatsStore) Compute(ctx context.Context, tx pgx.Tx, ref ActorRef) (Snapshot, error) {
	if err := f.computeErrs[ref.ID]; err != nil {
		return Snapshot{}, err
	}
	if snap, ok := f.rollups[ref.ID]; ok {
		return snap, nil
	}
	return Snapshot{ActorID: ref.ID, Role: ref.Role}, nil
}

func (f *fakeStatsStore) Upsert(ctx context.Context, tx pgx.Tx, snap Snapshot) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, snap)
	return nil
}

func (f *fakeStatsStore) Get(ctx context.Context, actorID string) (Snapshot, error) {
	snap, ok := f.snapshots[actorID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
