package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"creatorconnect/account"
)

// ErrUnauthorized signals the actor may not read or rebuild the snapshot.
var ErrUnauthorized = errors.New("stats: unauthorized")

const defaultRebuildConcurrency = 4

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Recalculator rebuilds stat snapshots from the authoritative tables. Each
// actor rebuilds in its own transaction, all-or-nothing; the batch never
// fails as a whole.
type Recalculator struct {
	pool        TxBeginner
	store       Store
	concurrency int
}

// RebuildError records one actor's failed rebuild.
type RebuildError struct {
	ActorID string
	Err     error
}

// RebuildReport summarises a batch rebuild.
type RebuildReport struct {
	Scanned int
	Rebuilt int
	Errors  []RebuildError
}

func NewRecalculator(pool TxBeginner, store Store) *Recalculator {
	return &Recalculator{
		pool:        pool,
		store:       store,
		concurrency: defaultRebuildConcurrency,
	}
}

// WithConcurrency bounds the number of actors rebuilt in parallel.
func (r *Recalculator) WithConcurrency(n int) *Recalculator {
	if n > 0 {
		r.concurrency = n
	}
	return r
}

// RebuildActor recomputes and upserts one actor's snapshot.
func (r *Recalculator) RebuildActor(ctx context.Context, ref ActorRef) (Snapshot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("stats: begin rebuild tx: %w", err)
	}
	defer tx.Rollback(ctx)

	snap, err := r.store.Compute(ctx, tx, ref)
	if err != nil {
		return Snapshot{}, err
	}
	if err := r.store.Upsert(ctx, tx, snap); err != nil {
		return Snapshot{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("stats: commit rebuild: %w", err)
	}
	return snap, nil
}

// RebuildAll rebuilds every brand and creator snapshot. Admin only. A failed
// actor is reported and skipped, never fatal to the batch.
func (r *Recalculator) RebuildAll(ctx context.Context, actor account.Actor) (RebuildReport, error) {
	if err := account.CheckAccess(actor); err != nil {
		return RebuildReport{}, err
	}
	if !actor.Role.IsAdmin() {
		return RebuildReport{}, ErrUnauthorized
	}

	refs, err := r.store.ListActors(ctx)
	if err != nil {
		return RebuildReport{}, err
	}

	var (
		mu     sync.Mutex
		report = RebuildReport{Scanned: len(refs)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, ref := range refs {
		if gctx.Err() != nil {
			break
		}
		ref := ref
		g.Go(func() error {
			if _, err := r.RebuildActor(gctx, ref); err != nil {
				mu.Lock()
				report.Errors = append(report.Errors, RebuildError{ActorID: ref.ID, Err: err})
				mu.Unlock()
				return nil
			}
			mu.Lock()
			report.Rebuilt++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, ctx.Err()
}

// Snapshot returns the actor's rollup. Actors see their own; admins see all.
func (r *Recalculator) Snapshot(ctx context.Context, actor account.Actor, actorID string) (Snapshot, error) {
	if actor.ID != actorID && !actor.Role.IsAdmin() {
		return Snapshot{}, ErrUnauthorized
	}
	return r.store.Get(ctx, actorID)
}
