package invitation

import "time"

// Status is the invitation lifecycle state. accepted, declined and expired
// are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusExpired  Status = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusDeclined || s == StatusExpired
}

// Origin records which side opened the relation: a brand invitation or a
// creator application. The lifecycle is the same either way; origin decides
// who may respond and who gets notified.
type Origin string

const (
	OriginBrand   Origin = "brand"
	OriginCreator Origin = "creator"
)

// Invitation mirrors the invitations table, joined with the owning campaign's
// brand so visibility checks need no second read.
type Invitation struct {
	ID          string
	CampaignID  string
	BrandID     string
	CreatorID   string
	Origin      Origin
	Status      Status
	Message     string
	RespondedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ResponderID returns the party expected to answer: the creator for brand
// invitations, the brand for creator applications.
func (i Invitation) ResponderID() string {
	if i.Origin == OriginCreator {
		return i.BrandID
	}
	return i.CreatorID
}

// InitiatorID returns the party that opened the relation.
func (i Invitation) InitiatorID() string {
	if i.Origin == OriginCreator {
		return i.CreatorID
	}
	return i.BrandID
}

// CreateParams enumerates the fields required to open a campaign relation.
// An empty Origin defaults to a brand invitation.
type CreateParams struct {
	CampaignID string
	CreatorID  string
	Message    string
	Origin     Origin
}
