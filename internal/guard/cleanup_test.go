package guard

import (
	"testing"
	"time"
)

func TestCleanupPrunesExpiredState(t *testing.T) {
	g, clock := newTestGuard(t)

	// Seed every table.
	g.CheckRateLimit("10.0.0.1", "api", "")
	for i := 0; i < 6; i++ {
		g.CheckRateLimit("10.0.0.2", "login", "")
	}
	for i := 0; i < 5; i++ {
		g.RecordFailedLogin("10.0.0.3", "alice")
	}
	token, err := g.CreateSecureSession("42", "10.0.0.4", "ua")
	if err != nil {
		t.Fatalf("CreateSecureSession: %v", err)
	}

	clock.Advance(25 * time.Hour)
	g.Cleanup()

	g.rateMu.Lock()
	historyLen, blocklistLen := len(g.history), len(g.blocklist)
	g.rateMu.Unlock()
	if historyLen != 0 {
		t.Fatalf("rate history not pruned: %d entries", historyLen)
	}
	if blocklistLen != 0 {
		t.Fatalf("blocklist not pruned: %d entries", blocklistLen)
	}

	if g.FailedAttempts("10.0.0.3") != 0 {
		t.Fatal("failure list not pruned")
	}
	g.failMu.Lock()
	suspiciousLen := len(g.suspicious)
	g.failMu.Unlock()
	if suspiciousLen != 0 {
		t.Fatalf("suspicious flags not pruned: %d", suspiciousLen)
	}

	if g.ActiveSessionCount() != 0 {
		t.Fatal("timed out session not pruned")
	}
	if _, ok := g.ValidateSession(token, "10.0.0.4", "ua"); ok {
		t.Fatal("pruned session accepted")
	}
}

func TestCleanupKeepsLiveState(t *testing.T) {
	g, clock := newTestGuard(t)

	g.CheckRateLimit("10.0.0.1", "api", "")
	g.RecordFailedLogin("10.0.0.2", "alice")
	token, err := g.CreateSecureSession("42", "10.0.0.3", "ua")
	if err != nil {
		t.Fatalf("CreateSecureSession: %v", err)
	}

	clock.Advance(time.Minute)
	g.Cleanup()

	if g.FailedAttempts("10.0.0.2") != 1 {
		t.Fatal("live failure record pruned")
	}
	if _, ok := g.ValidateSession(token, "10.0.0.3", "ua"); !ok {
		t.Fatal("live session pruned")
	}
}
