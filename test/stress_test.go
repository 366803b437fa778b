package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"creatorconnect/account"
	"creatorconnect/campaign"
	"creatorconnect/content"
	"creatorconnect/invitation"
	"creatorconnect/test/actors"
	"creatorconnect/test/chaos"
	"creatorconnect/test/infra"
	"creatorconnect/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
	flCreators    = flag.Int("creators", 6, "number of creators fighting over the campaign")
	flSlots       = flag.Int("slots", 3, "required deliverables per creator")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestLifecycleConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	seedData := mustSeed(t, ctx, pool, *flCreators, *flSlots)

	campaignRepo := campaign.NewRepository(pool)
	engine := campaign.NewEngine(pool, campaignRepo)
	accountRepo := account.NewRepository(pool)
	invitationSvc := invitation.NewService(pool, invitation.NewRepository(pool), campaignRepo, accountRepo, engine)
	contentSvc := content.NewService(pool, content.NewRepository(pool), campaignRepo, engine)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// invitations, responses, submissions, and reviews all race over the
	// same campaign row
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			return actors.Inviter(ctx2, invitationSvc, seedData.brand, seedData.campaignID, seedData.creators, stop)
		})
		g.Go(func() error {
			return actors.Responder(ctx2, pool, invitationSvc, seedData.creators, stop)
		})
		g.Go(func() error {
			return actors.Submitter(ctx2, contentSvc, seedData.creators, seedData.campaignID, *flSlots, stop)
		})
	}
	g.Go(func() error {
		return actors.Applicant(ctx2, invitationSvc, seedData.creators, seedData.campaignID, stop)
	})
	g.Go(func() error { return actors.BrandResponder(ctx2, pool, invitationSvc, seedData.brand, stop) })
	g.Go(func() error { return actors.Reviewer(ctx2, pool, contentSvc, seedData.brand, stop) })
	// batch sweep must stay a no-op against campaigns the state machines
	// keep fresh
	g.Go(func() error { return actors.Sweeper(ctx2, engine, stop) })
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	brand      account.Actor
	creators   []account.Actor
	campaignID string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool, creators, slots int) seedIDs {
	t.Helper()
	var s seedIDs

	var brandID string
	if err := pool.QueryRow(ctx,
		`INSERT INTO users (email, full_name, role) VALUES ($1, 'Stress Brand', 'brand') RETURNING id`,
		fmt.Sprintf("brand%d@example.com", rand.Int63()),
	).Scan(&brandID); err != nil {
		t.Fatalf("seed brand: %v", err)
	}
	s.brand = account.Actor{ID: brandID, Role: account.RoleBrand}

	for i := 0; i < creators; i++ {
		var id string
		if err := pool.QueryRow(ctx,
			`INSERT INTO users (email, full_name, role) VALUES ($1, $2, 'creator') RETURNING id`,
			fmt.Sprintf("creator%d-%d@example.com", i, rand.Int63()),
			fmt.Sprintf("Stress Creator %d", i),
		).Scan(&id); err != nil {
			t.Fatalf("seed creator %d: %v", i, err)
		}
		s.creators = append(s.creators, account.Actor{ID: id, Role: account.RoleCreator})
	}

	if err := pool.QueryRow(ctx,
		`INSERT INTO campaigns (brand_id, title, description, required_deliverables, status)
		 VALUES ($1, 'Stress Campaign', 'concurrency soak', $2, 'open') RETURNING id`,
		brandID, slots,
	).Scan(&s.campaignID); err != nil {
		t.Fatalf("seed campaign: %v", err)
	}

	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"campaigns", `SELECT id, status, progress, version, updated_at FROM campaigns ORDER BY updated_at DESC LIMIT 20`},
		{"invitations", `SELECT id, campaign_id, creator_id, status, responded_at FROM invitations ORDER BY updated_at DESC LIMIT 50`},
		{"content_submissions", `SELECT id, creator_id, slot_no, attempt, status, submitted_at FROM content_submissions ORDER BY submitted_at DESC LIMIT 50`},
		{"transition_events", `SELECT id, entity_type, entity_id, from_state, to_state, created_at FROM transition_events ORDER BY id DESC LIMIT 50`},
		{"notifications", `SELECT id, recipient_id, kind, created_at FROM notifications ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
