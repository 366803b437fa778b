package account

import (
	"errors"
	"testing"
	"time"
)

func TestCheckAccess_Active(t *testing.T) {
	actor := Actor{ID: "u1", Role: RoleCreator}
	if err := CheckAccess(actor); err != nil {
		t.Fatalf("expected active actor to pass, got %v", err)
	}
}

func TestCheckAccess_Suspended(t *testing.T) {
	since := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	reason := "spam reports"
	actor := Actor{ID: "u1", Role: RoleBrand, SuspendedAt: &since, SuspensionReason: &reason}

	err := CheckAccess(actor)
	var denied *AccessDenied
	if !errors.As(err, &denied) {
		t.Fatalf("expected AccessDenied, got %v", err)
	}
	if denied.Kind != DenialSuspended {
		t.Fatalf("expected kind %s got %s", DenialSuspended, denied.Kind)
	}
	if denied.Reason != reason {
		t.Fatalf("expected reason %q got %q", reason, denied.Reason)
	}
	if !denied.Since.Equal(since) {
		t.Fatalf("expected since %v got %v", since, denied.Since)
	}
}

func TestCheckAccess_Banned(t *testing.T) {
	since := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	actor := Actor{ID: "u1", Role: RoleCreator, BannedAt: &since}

	err := CheckAccess(actor)
	var denied *AccessDenied
	if !errors.As(err, &denied) {
		t.Fatalf("expected AccessDenied, got %v", err)
	}
	if denied.Kind != DenialBanned {
		t.Fatalf("expected kind %s got %s", DenialBanned, denied.Kind)
	}
	if denied.Reason != noReasonProvided {
		t.Fatalf("expected default reason, got %q", denied.Reason)
	}
}

func TestCheckAccess_BanOutranksSuspension(t *testing.T) {
	suspended := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	banned := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	actor := Actor{ID: "u1", SuspendedAt: &suspended, BannedAt: &banned}

	err := CheckAccess(actor)
	var denied *AccessDenied
	if !errors.As(err, &denied) {
		t.Fatalf("expected AccessDenied, got %v", err)
	}
	if denied.Kind != DenialBanned {
		t.Fatalf("expected ban to take precedence, got %s", denied.Kind)
	}
}

func TestRoleCapabilities(t *testing.T) {
	if !RoleBrand.IsBrand() || RoleBrand.IsCreator() || RoleBrand.IsAdmin() {
		t.Fatal("brand capability predicates wrong")
	}
	if !RoleCreator.IsCreator() || RoleCreator.IsBrand() {
		t.Fatal("creator capability predicates wrong")
	}
	if !RoleAdmin.IsAdmin() {
		t.Fatal("admin capability predicates wrong")
	}
}
