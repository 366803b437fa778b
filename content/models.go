package content

import (
	"io"
	"time"
)

// Status is the submission review state. approved and rejected are terminal
// for the record; a reviewed slot can receive a fresh attempt.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// Submission mirrors the content_submissions table. Attempt numbers a slot's
// submissions from 1; the highest attempt is the slot's authoritative state.
type Submission struct {
	ID              string
	CampaignID      string
	CreatorID       string
	InvitationID    string
	SlotNo          int
	Attempt         int
	FileRef         string
	Caption         string
	Status          Status
	RejectionReason *string
	SubmittedAt     time.Time
	ReviewedAt      *time.Time
}

// SubmitParams carries a creator's deliverable for one slot. Data, when set,
// is persisted through the FileStore and FileRef is ignored; otherwise FileRef
// must already point at the stored artifact.
type SubmitParams struct {
	CampaignID string
	SlotNo     int
	FileName   string
	FileRef    string
	Caption    string
	Data       io.Reader
}
