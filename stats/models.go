package stats

import (
	"time"

	"creatorconnect/account"
)

// Snapshot is a denormalized per-actor rollup of campaign and submission
// outcomes. It is rebuilt wholesale, never incremented.
type Snapshot struct {
	ActorID             string
	Role                account.Role
	CompletedCampaigns  int
	ActiveCampaigns     int
	ApprovedSubmissions int
	RejectedSubmissions int
	RecalculatedAt      time.Time
}

// ActorRef identifies one actor to rebuild.
type ActorRef struct {
	ID   string
	Role account.Role
}
