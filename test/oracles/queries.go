package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariants checked against a live database. Each query
// selects violating rows; an empty result means the invariant holds.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_progress_bounds",
			SQL:  `SELECT id, progress FROM campaigns WHERE progress < 0 OR progress > 100`,
		},
		{
			Name: "O2_completed_iff_all_approved",
			SQL: `WITH latest AS (
                      SELECT DISTINCT ON (campaign_id, creator_id, slot_no)
                             campaign_id, creator_id, slot_no, status
                      FROM content_submissions
                      ORDER BY campaign_id, creator_id, slot_no, attempt DESC
                  ),
                  approved AS (
                      SELECT campaign_id, COUNT(*) AS n FROM latest
                      WHERE status = 'approved' GROUP BY campaign_id
                  ),
                  members AS (
                      SELECT campaign_id, COUNT(*) AS n FROM campaign_creators GROUP BY campaign_id
                  )
                  SELECT c.id, c.status, c.progress
                  FROM campaigns c
                  LEFT JOIN approved a ON a.campaign_id = c.id
                  LEFT JOIN members m ON m.campaign_id = c.id
                  WHERE c.status = 'completed'
                    AND COALESCE(a.n, 0) < COALESCE(m.n, 0) * c.required_deliverables`,
		},
		{
			Name: "O3_accepted_invitation_has_membership",
			SQL: `SELECT i.id FROM invitations i
                  WHERE i.status = 'accepted'
                    AND NOT EXISTS (
                        SELECT 1 FROM campaign_creators m
                        WHERE m.campaign_id = i.campaign_id AND m.creator_id = i.creator_id)`,
		},
		{
			Name: "O4_membership_has_accepted_invitation",
			SQL: `SELECT m.campaign_id, m.creator_id FROM campaign_creators m
                  JOIN invitations i ON i.id = m.invitation_id
                  WHERE i.status <> 'accepted'`,
		},
		{
			Name: "O5_single_live_invitation",
			SQL: `SELECT campaign_id, creator_id, COUNT(*) FROM invitations
                  WHERE status IN ('pending', 'accepted')
                  GROUP BY campaign_id, creator_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O6_attempts_gapless",
			SQL: `SELECT campaign_id, creator_id, slot_no, MAX(attempt), COUNT(*)
                  FROM content_submissions
                  GROUP BY campaign_id, creator_id, slot_no
                  HAVING MAX(attempt) <> COUNT(*)`,
		},
		{
			Name: "O7_single_pending_attempt_per_slot",
			SQL: `SELECT campaign_id, creator_id, slot_no, COUNT(*)
                  FROM content_submissions
                  WHERE status = 'submitted'
                  GROUP BY campaign_id, creator_id, slot_no HAVING COUNT(*) > 1`,
		},
		{
			Name: "O8_only_latest_attempt_pending",
			SQL: `SELECT s.id FROM content_submissions s
                  WHERE s.status = 'submitted'
                    AND EXISTS (
                        SELECT 1 FROM content_submissions newer
                        WHERE newer.campaign_id = s.campaign_id
                          AND newer.creator_id = s.creator_id
                          AND newer.slot_no = s.slot_no
                          AND newer.attempt > s.attempt)`,
		},
		{
			Name: "O9_rejection_has_reason",
			SQL: `SELECT id FROM content_submissions
                  WHERE status = 'rejected' AND (rejection_reason IS NULL OR rejection_reason = '')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
