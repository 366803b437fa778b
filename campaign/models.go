package campaign

import "time"

// Status is the campaign lifecycle state. draft and cancelled are outside the
// progress engine's reach; completed can regress to in_progress when a
// previously approved slot is reopened by a rejected resubmission.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Campaign mirrors the campaigns table. Progress and status are derived by the
// engine; nothing else may write them.
type Campaign struct {
	ID                   string
	BrandID              string
	Title                string
	Description          string
	RequiredDeliverables int
	Status               Status
	Progress             int
	Version              int64
	AssetRef             *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Member is an entry in a campaign's accepted-creator set.
type Member struct {
	CampaignID   string
	CreatorID    string
	InvitationID string
	JoinedAt     time.Time
}

// Filters narrows campaign listings.
type Filters struct {
	BrandID  string
	Status   Status
	Page     int
	PageSize int
}
