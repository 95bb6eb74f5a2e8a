package audit

import (
	"path/filepath"
	"testing"
	"time"
)

func TestOpenEmptyPathDisablesAuditing(t *testing.T) {
	r, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	// Record and Prune must both be safe no-ops.
	r.Record(Event{Kind: KindConnect})
	if err := r.Prune(time.Now()); err != ErrNotOpen {
		t.Fatalf("got %v, want ErrNotOpen", err)
	}
}

func TestRecordAndPrune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	r.Record(Event{Kind: KindBind, AppID: "app1", Side: "side1"})

	// Give the background writer a moment to drain; this is a best-effort
	// system so the test only checks Prune doesn't error, not exact timing.
	time.Sleep(50 * time.Millisecond)

	if err := r.Prune(time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Prune: %v", err)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Record(Event{Kind: KindConnect})
	r.Close()
}
