package domain

import "testing"

func TestCanTransition_Table(t *testing.T) {
	tests := []struct {
		name    string
		current Status
		next    Status
		want    bool
	}{
		{"active to expired", StatusActive, StatusExpired, true},
		{"active to grace period", StatusActive, StatusInGracePeriod, true},
		{"active to paused", StatusActive, StatusPaused, true},
		{"active to billing retry", StatusActive, StatusInBillingRetry, true},
		{"active to revoked", StatusActive, StatusRevoked, true},
		{"active to refunded", StatusActive, StatusRefunded, true},
		{"active to pending", StatusActive, StatusPending, false},
		{"active to on_hold", StatusActive, StatusOnHold, false},

		{"expired to active", StatusExpired, StatusActive, true},
		{"expired to revoked", StatusExpired, StatusRevoked, false},
		{"expired to grace period", StatusExpired, StatusInGracePeriod, false},

		{"grace period to active", StatusInGracePeriod, StatusActive, true},
		{"grace period to expired", StatusInGracePeriod, StatusExpired, true},
		{"grace period to billing retry", StatusInGracePeriod, StatusInBillingRetry, true},
		{"grace period to revoked", StatusInGracePeriod, StatusRevoked, false},
		{"grace period to refunded", StatusInGracePeriod, StatusRefunded, false},

		{"billing retry to active", StatusInBillingRetry, StatusActive, true},
		{"billing retry to expired", StatusInBillingRetry, StatusExpired, true},
		{"billing retry to grace period", StatusInBillingRetry, StatusInGracePeriod, true},
		{"billing retry to revoked", StatusInBillingRetry, StatusRevoked, false},

		{"paused to active", StatusPaused, StatusActive, true},
		{"paused to expired", StatusPaused, StatusExpired, true},
		{"paused to grace period", StatusPaused, StatusInGracePeriod, false},

		{"on_hold to active", StatusOnHold, StatusActive, true},
		{"on_hold to expired", StatusOnHold, StatusExpired, true},
		{"on_hold to revoked", StatusOnHold, StatusRevoked, false},

		{"pending to active", StatusPending, StatusActive, true},
		{"pending to expired", StatusPending, StatusExpired, true},
		{"pending to paused", StatusPending, StatusPaused, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.current, tt.next); got != tt.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.current, tt.next, got, tt.want)
			}
		})
	}
}

func TestCanTransition_TerminalStates(t *testing.T) {
	targets := []Status{
		StatusActive, StatusExpired, StatusInGracePeriod,
		StatusInBillingRetry, StatusPaused, StatusOnHold, StatusPending,
	}

	for _, terminal := range []Status{StatusRevoked, StatusRefunded} {
		for _, next := range targets {
			if CanTransition(terminal, next) {
				t.Errorf("terminal status %q should not transition to %q", terminal, next)
			}
		}
		if !terminal.IsTerminal() {
			t.Errorf("%q should report IsTerminal", terminal)
		}
	}
}

func TestCanTransition_UnknownStatusIsPermissive(t *testing.T) {
	// A current status absent from the table is the forward-compatibility
	// bootstrap case: any transition is permitted so new platform-reported
	// statuses never hard-block ingestion.
	for _, next := range []Status{StatusActive, StatusExpired, StatusRevoked, Status("another_new_one")} {
		if !CanTransition(Status("newly_invented_by_platform"), next) {
			t.Errorf("unknown current status should permit transition to %q", next)
		}
	}
}

func TestCanTransition_SelfTransition(t *testing.T) {
	// Repeated events carrying the same status (e.g. a renewal extending an
	// already-active subscription) must still pass validation so the other
	// subscription fields get refreshed.
	if !CanTransition(StatusActive, StatusActive) {
		t.Error("active -> active should be allowed")
	}
	if !CanTransition(StatusExpired, StatusExpired) {
		t.Error("expired -> expired should be allowed")
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"active", StatusActive},
		{"ACTIVE", StatusActive},
		{"  In_Grace_Period ", StatusInGracePeriod},
		{"refunded", StatusRefunded},
		{"something_new", Status("something_new")},
	}

	for _, tt := range tests {
		if got := ParseStatus(tt.raw); got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
