package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"creatorconnect/account"
	"creatorconnect/campaign"
	"creatorconnect/content"
	"creatorconnect/invitation"
)

// Inviter keeps inviting random creators to the campaign. Duplicate live
// invitations are expected under contention.
func Inviter(ctx context.Context, svc *invitation.Service, brand account.Actor, campaignID string, creators []account.Actor, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		target := creators[rand.Intn(len(creators))]
		_, err := svc.Create(ctx, brand, invitation.CreateParams{
			CampaignID: campaignID,
			CreatorID:  target.ID,
		})
		if err != nil && !tolerable(err) {
			return fmt.Errorf("inviter: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Applicant has random creators ask to join the campaign. Collisions with a
// live invitation for the same pair are expected.
func Applicant(ctx context.Context, svc *invitation.Service, creators []account.Actor, campaignID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		actor := creators[rand.Intn(len(creators))]
		_, err := svc.Apply(ctx, actor, campaignID, "let me in")
		if err != nil && !tolerable(err) {
			return fmt.Errorf("applicant: %w", err)
		}
		time.Sleep(time.Duration(15+rand.Intn(25)) * time.Millisecond)
	}
}

// BrandResponder answers pending creator applications, mostly accepting.
func BrandResponder(ctx context.Context, pool *pgxpool.Pool, svc *invitation.Service, brand account.Actor, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var appID string
		err := pool.QueryRow(ctx,
			`SELECT i.id FROM invitations i
			 JOIN campaigns c ON c.id = i.campaign_id
			 WHERE i.status = 'pending' AND i.origin = 'creator' AND c.brand_id = $1
			 LIMIT 1`,
			brand.ID,
		).Scan(&appID)
		if err == nil {
			accept := rand.Intn(10) < 8
			if _, err := svc.Respond(ctx, brand, appID, accept); err != nil && !tolerable(err) {
				return fmt.Errorf("brand responder: %w", err)
			}
		} else if !errors.Is(err, pgx.ErrNoRows) && ctx.Err() == nil {
			return fmt.Errorf("brand responder scan: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(30)) * time.Millisecond)
	}
}

// Responder answers pending invitations, mostly accepting.
func Responder(ctx context.Context, pool *pgxpool.Pool, svc *invitation.Service, creators []account.Actor, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		actor := creators[rand.Intn(len(creators))]
		var invID string
		err := pool.QueryRow(ctx,
			`SELECT id FROM invitations WHERE creator_id = $1 AND status = 'pending' AND origin = 'brand' LIMIT 1`,
			actor.ID,
		).Scan(&invID)
		if err == nil {
			accept := rand.Intn(10) < 8
			if _, err := svc.Respond(ctx, actor, invID, accept); err != nil && !tolerable(err) {
				return fmt.Errorf("responder: %w", err)
			}
		} else if !errors.Is(err, pgx.ErrNoRows) && ctx.Err() == nil {
			return fmt.Errorf("responder scan: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(30)) * time.Millisecond)
	}
}

// Submitter uploads deliverables for random slots.
func Submitter(ctx context.Context, svc *content.Service, creators []account.Actor, campaignID string, slots int, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		actor := creators[rand.Intn(len(creators))]
		slot := 1 + rand.Intn(slots)
		_, err := svc.Submit(ctx, actor, content.SubmitParams{
			CampaignID: campaignID,
			SlotNo:     slot,
			FileRef:    fmt.Sprintf("stress://%s/slot-%d/%d", actor.ID, slot, rand.Int63()),
		})
		if err != nil && !tolerable(err) {
			return fmt.Errorf("submitter: %w", err)
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// Reviewer drains the brand's review queue with a bias towards approval.
func Reviewer(ctx context.Context, pool *pgxpool.Pool, svc *content.Service, brand account.Actor, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var subID string
		err := pool.QueryRow(ctx,
			`SELECT s.id FROM content_submissions s
			 JOIN campaigns c ON c.id = s.campaign_id
			 WHERE s.status = 'submitted' AND c.brand_id = $1
			 ORDER BY s.submitted_at ASC LIMIT 1`,
			brand.ID,
		).Scan(&subID)
		if err == nil {
			approve := rand.Intn(10) < 7
			reason := ""
			if !approve {
				reason = "needs work"
			}
			if _, err := svc.Review(ctx, brand, subID, approve, reason); err != nil && !tolerable(err) {
				return fmt.Errorf("reviewer: %w", err)
			}
		} else if !errors.Is(err, pgx.ErrNoRows) && ctx.Err() == nil {
			return fmt.Errorf("reviewer scan: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Sweeper runs the batch recompute against everything the state machines
// already keep consistent, so it must never change an up-to-date campaign.
func Sweeper(ctx context.Context, engine *campaign.Engine, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if _, err := engine.Sweep(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("sweeper: %w", err)
		}
		time.Sleep(time.Duration(100+rand.Intn(200)) * time.Millisecond)
	}
}

// tolerable reports whether the error is an expected business outcome under
// contention rather than a harness failure.
func tolerable(err error) bool {
	switch {
	case errors.Is(err, invitation.ErrDuplicate),
		errors.Is(err, invitation.ErrInvalidTransition),
		errors.Is(err, invitation.ErrExpired),
		errors.Is(err, invitation.ErrCampaignClosed),
		errors.Is(err, invitation.ErrNotFound),
		errors.Is(err, content.ErrNotMember),
		errors.Is(err, content.ErrAwaitingReview),
		errors.Is(err, content.ErrResubmissionLimit),
		errors.Is(err, content.ErrSlotOutOfRange),
		errors.Is(err, content.ErrCampaignClosed),
		errors.Is(err, content.ErrDuplicateAttempt),
		errors.Is(err, content.ErrInvalidTransition),
		errors.Is(err, content.ErrNotFound),
		errors.Is(err, campaign.ErrConcurrentModification),
		errors.Is(err, context.Canceled):
		return true
	}
	return false
}
