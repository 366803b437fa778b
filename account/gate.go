package account

import (
	"fmt"
	"time"
)

// DenialKind distinguishes the two restricted standings.
type DenialKind string

const (
	DenialSuspended DenialKind = "suspended"
	DenialBanned    DenialKind = "banned"
)

const noReasonProvided = "No reason provided"

// AccessDenied is returned by CheckAccess for actors in restricted standing.
// Suspension is reversible by an admin; a ban is not.
type AccessDenied struct {
	Kind   DenialKind
	Reason string
	Since  time.Time
}

func (e *AccessDenied) Error() string {
	return fmt.Sprintf("account: access denied (%s since %s): %s", e.Kind, e.Since.Format(time.RFC3339), e.Reason)
}

// CheckAccess evaluates the actor's standing. It must be called before every
// state-mutating lifecycle operation; authentication itself is exempt so that
// restricted users can still log in and see why they are locked out.
// The check is pure: it inspects only the actor record it is given.
func CheckAccess(actor Actor) error {
	if actor.BannedAt != nil {
		return &AccessDenied{
			Kind:   DenialBanned,
			Reason: reasonOrDefault(actor.BanReason),
			Since:  *actor.BannedAt,
		}
	}
	if actor.SuspendedAt != nil {
		return &AccessDenied{
			Kind:   DenialSuspended,
			Reason: reasonOrDefault(actor.SuspensionReason),
			Since:  *actor.SuspendedAt,
		}
	}
	return nil
}

func reasonOrDefault(reason *string) string {
	if reason == nil || *reason == "" {
		return noReasonProvided
	}
	return *reason
}
