package campaign

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"creatorconnect/notification"
)

const defaultSweepConcurrency = 4

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Notifier receives committed lifecycle transitions, fire-and-forget.
type Notifier interface {
	Dispatch(ctx context.Context, ev notification.Event)
}

// Engine derives campaign progress and status from the authoritative
// submission records. It is the only writer of those two columns: every other
// component that needs them fresh routes through Recompute, which serializes
// per campaign via the row lock taken by the store.
type Engine struct {
	pool             TxBeginner
	store            EngineStore
	notifier         Notifier
	sweepConcurrency int
}

// RecomputeResult reports what a recompute observed and wrote.
type RecomputeResult struct {
	Campaign      Campaign
	From          Status
	StatusChanged bool
}

func NewEngine(pool TxBeginner, store EngineStore) *Engine {
	return &Engine{
		pool:             pool,
		store:            store,
		sweepConcurrency: defaultSweepConcurrency,
	}
}

// WithNotifier attaches the dispatcher used to announce status changes.
func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// WithSweepConcurrency bounds the number of campaigns recomputed in parallel
// during a sweep.
func (e *Engine) WithSweepConcurrency(n int) *Engine {
	if n > 0 {
		e.sweepConcurrency = n
	}
	return e
}

// computeProgress derives the completion percentage. Rounding is floor so a
// campaign never reads 100% before the last slot is approved.
func computeProgress(approvedSlots, acceptedCreators, requiredPerCreator int) int {
	if acceptedCreators <= 0 || requiredPerCreator <= 0 {
		return 0
	}
	total := acceptedCreators * requiredPerCreator
	progress := approvedSlots * 100 / total
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}

// deriveStatus maps progress onto the campaign status machine. draft and
// cancelled are never touched by recomputation.
func deriveStatus(current Status, progress, acceptedCreators int) Status {
	switch current {
	case StatusDraft, StatusCancelled:
		return current
	}
	if progress == 100 {
		return StatusCompleted
	}
	if acceptedCreators > 0 {
		return StatusInProgress
	}
	return StatusOpen
}

// Recompute runs a full recompute in its own transaction and announces any
// resulting status change after commit.
func (e *Engine) Recompute(ctx context.Context, campaignID string) (Campaign, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return Campaign{}, fmt.Errorf("campaign: begin recompute tx: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := e.RecomputeInTx(ctx, tx, campaignID)
	if err != nil {
		return Campaign{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Campaign{}, fmt.Errorf("campaign: commit recompute: %w", err)
	}

	e.Announce(ctx, res)
	return res.Campaign, nil
}

// RecomputeInTx recomputes inside the caller's transaction so state machines
// can fold the recompute into their own commit. The caller is responsible for
// invoking Announce once the transaction has committed.
func (e *Engine) RecomputeInTx(ctx context.Context, tx pgx.Tx, campaignID string) (RecomputeResult, error) {
	in, err := e.store.LoadForRecompute(ctx, tx, campaignID)
	if err != nil {
		return RecomputeResult{}, err
	}

	current := in.Campaign
	if current.Status == StatusDraft || current.Status == StatusCancelled {
		return RecomputeResult{Campaign: current, From: current.Status}, nil
	}

	progress := computeProgress(in.ApprovedSlots, in.AcceptedCreators, current.RequiredDeliverables)
	status := deriveStatus(current.Status, progress, in.AcceptedCreators)

	// Idempotence: unchanged inputs write nothing and announce nothing.
	if progress == current.Progress && status == current.Status {
		return RecomputeResult{Campaign: current, From: current.Status}, nil
	}

	updated, err := e.store.ApplyRecompute(ctx, tx, ApplyRecomputeParams{
		CampaignID:      campaignID,
		FromStatus:      current.Status,
		ToStatus:        status,
		Progress:        progress,
		ExpectedVersion: current.Version,
	})
	if err != nil {
		return RecomputeResult{}, err
	}

	return RecomputeResult{
		Campaign:      updated,
		From:          current.Status,
		StatusChanged: status != current.Status,
	}, nil
}

// Announce emits the completion notification for a committed recompute
// result. No-op results and non-completion transitions are silent; the
// transition event row already records them.
func (e *Engine) Announce(ctx context.Context, res RecomputeResult) {
	if e.notifier == nil || !res.StatusChanged {
		return
	}
	if res.Campaign.Status != StatusCompleted {
		return
	}
	e.notifier.Dispatch(ctx, notification.Event{
		RecipientID: res.Campaign.BrandID,
		Kind:        notification.KindCampaignCompleted,
		Payload: map[string]any{
			"campaign_id": res.Campaign.ID,
			"title":       res.Campaign.Title,
		},
	})
}

// SweepError records a single campaign's recompute failure during a sweep.
type SweepError struct {
	CampaignID string
	Err        error
}

// SweepReport summarises a batch recompute pass.
type SweepReport struct {
	Scanned    int
	Recomputed int
	Errors     []SweepError
}

// Sweep recomputes every open or in_progress campaign independently. A
// failure on one campaign is recorded and never aborts the pass; cancelling
// the context stops scheduling new campaigns while already-committed items
// stay committed.
func (e *Engine) Sweep(ctx context.Context) (SweepReport, error) {
	ids, err := e.store.ListRecomputable(ctx)
	if err != nil {
		return SweepReport{}, err
	}

	var (
		mu     sync.Mutex
		report = SweepReport{Scanned: len(ids)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.sweepConcurrency)

	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			if _, err := e.Recompute(gctx, id); err != nil {
				mu.Lock()
				report.Errors = append(report.Errors, SweepError{CampaignID: id, Err: err})
				mu.Unlock()
				return nil
			}
			mu.Lock()
			report.Recomputed++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, ctx.Err()
}
