package campaign

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func TestConcurrentRecomputeIsIdempotent(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	for _, tbl := range []string{"users", "campaigns", "invitations", "campaign_creators", "content_submissions"} {
		if !tableExists(ctx, pool, tbl) {
			t.Skipf("table %s does not exist; ensure migrations are applied", tbl)
		}
	}

	mustInsert := func(query string, args ...any) string {
		var id string
		if err := pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
			t.Fatalf("seed statement failed: %v", err)
		}
		return id
	}

	nonce := time.Now().UnixNano()
	brandID := mustInsert(`INSERT INTO users (email, full_name, role) VALUES ($1, 'Brand', 'brand') RETURNING id`,
		fmt.Sprintf("brand+%d@example.com", nonce))
	creatorA := mustInsert(`INSERT INTO users (email, full_name, role) VALUES ($1, 'Creator A', 'creator') RETURNING id`,
		fmt.Sprintf("creator-a+%d@example.com", nonce))
	creatorB := mustInsert(`INSERT INTO users (email, full_name, role) VALUES ($1, 'Creator B', 'creator') RETURNING id`,
		fmt.Sprintf("creator-b+%d@example.com", nonce))
	campaignID := mustInsert(`INSERT INTO campaigns (brand_id, title, required_deliverables, status) VALUES ($1, 'Recompute Race', 2, 'open') RETURNING id`,
		brandID)

	for _, creator := range []string{creatorA, creatorB} {
		invID := mustInsert(`INSERT INTO invitations (campaign_id, creator_id, status, responded_at) VALUES ($1, $2, 'accepted', now()) RETURNING id`,
			campaignID, creator)
		if _, err := pool.Exec(ctx, `INSERT INTO campaign_creators (campaign_id, creator_id, invitation_id) VALUES ($1, $2, $3)`,
			campaignID, creator, invID); err != nil {
			t.Fatalf("seed membership: %v", err)
		}
		if creator == creatorA {
			mustInsert(`INSERT INTO content_submissions (campaign_id, creator_id, invitation_id, slot_no, attempt, file_ref, status, reviewed_at)
				VALUES ($1, $2, $3, 1, 1, 'seed://a-1', 'approved', now()) RETURNING id`,
				campaignID, creatorA, invID)
		}
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM transition_events WHERE entity_id = $1 OR entity_id IN (SELECT id FROM invitations WHERE campaign_id = $1)`, campaignID)
		pool.Exec(ctx2, `DELETE FROM content_submissions WHERE campaign_id = $1`, campaignID)
		pool.Exec(ctx2, `DELETE FROM campaign_creators WHERE campaign_id = $1`, campaignID)
		pool.Exec(ctx2, `DELETE FROM invitations WHERE campaign_id = $1`, campaignID)
		pool.Exec(ctx2, `DELETE FROM campaigns WHERE id = $1`, campaignID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id IN ($1, $2, $3)`, brandID, creatorA, creatorB)
	})

	repo := NewRepository(pool)
	engine := NewEngine(pool, repo)

	// many racing recomputes must converge on the same derived state with
	// exactly one version bump between them
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := engine.Recompute(gctx, campaignID)
			if err != nil && !errors.Is(err, ErrConcurrentModification) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent recompute: %v", err)
	}

	c, err := repo.Get(ctx, campaignID)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	// one approved slot out of 2 creators x 2 deliverables
	if c.Progress != 25 {
		t.Fatalf("expected progress 25, got %d", c.Progress)
	}
	if c.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %s", c.Status)
	}
	if c.Version != 1 {
		t.Fatalf("expected exactly one version bump, got version %d", c.Version)
	}

	// a second pass over already-derived state writes nothing
	if _, err := engine.Recompute(ctx, campaignID); err != nil {
		t.Fatalf("idempotent recompute: %v", err)
	}
	c2, err := repo.Get(ctx, campaignID)
	if err != nil {
		t.Fatalf("get campaign after replay: %v", err)
	}
	if c2.Version != c.Version {
		t.Fatalf("expected version to stay %d, got %d", c.Version, c2.Version)
	}
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, name string) bool {
	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, name).Scan(&exists); err != nil {
		return false
	}
	return exists
}
