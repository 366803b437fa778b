package notification

import "time"

// Kind names a notification template understood by downstream consumers.
type Kind string

const (
	KindInvitationReceived  Kind = "invitation.received"
	KindInvitationAccepted  Kind = "invitation.accepted"
	KindInvitationDeclined  Kind = "invitation.declined"
	KindApplicationReceived Kind = "application.received"
	KindApplicationAccepted Kind = "application.accepted"
	KindApplicationDeclined Kind = "application.declined"
	KindContentSubmitted    Kind = "content.submitted"
	KindContentApproved     Kind = "content.approved"
	KindContentRejected     Kind = "content.rejected"
	KindCampaignCompleted   Kind = "campaign.completed"
)

// Record mirrors the notifications table. Records are immutable except for the
// read flag, which is toggled by the query surface.
type Record struct {
	ID          string
	RecipientID string
	Kind        Kind
	Payload     []byte
	Read        bool
	CreatedAt   time.Time
}

// Event is a lifecycle notification to be dispatched to one recipient.
type Event struct {
	RecipientID string
	Kind        Kind
	Payload     map[string]any
}
