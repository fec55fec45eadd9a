package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/logwarden/logwarden/internal/types"
)

// flakyAlerts fails the first UpdateAlert call, then behaves normally.
type flakyAlerts struct {
	memAlerts
	failed bool
}

func (f *flakyAlerts) UpdateAlert(a *types.Alert) error {
	if !f.failed {
		f.failed = true
		return fmt.Errorf("database is locked")
	}
	return f.memAlerts.UpdateAlert(a)
}

func bruteProposal(ip string, logIDs ...int64) Proposal {
	return Proposal{
		Type:      types.AlertBruteForce,
		Level:     types.AlertMedium,
		Title:     "Possible brute force attack from " + ip,
		RelatedIP: ip,
		LogIDs:    logIDs,
		Window:    5 * time.Minute,
	}
}

func TestApplyCreatesThenMerges(t *testing.T) {
	store := &memAlerts{}
	d := newDeduplicator(store)

	a1, created, err := d.Apply(bruteProposal("1.1.1.1", 1))
	if err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	if !created || a1.TriggerCount != 1 {
		t.Fatalf("first apply: created=%v count=%d, want fresh alert", created, a1.TriggerCount)
	}

	a2, created, err := d.Apply(bruteProposal("1.1.1.1", 2))
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if created {
		t.Error("second apply should merge, not create")
	}
	if a2.ID != a1.ID || a2.TriggerCount != 2 {
		t.Errorf("merged alert = id %d count %d, want id %d count 2", a2.ID, a2.TriggerCount, a1.ID)
	}
	if len(a2.RelatedLogIDs) != 2 {
		t.Errorf("related log ids = %v, want union of both firings", a2.RelatedLogIDs)
	}
}

func TestApplyZeroWindowNeverMerges(t *testing.T) {
	store := &memAlerts{}
	d := newDeduplicator(store)

	p := Proposal{
		Type:      types.AlertErrorLog,
		Level:     types.AlertMedium,
		Title:     "Error log from app",
		RelatedIP: "1.1.1.1",
		LogIDs:    []int64{1},
	}
	if _, created, err := d.Apply(p); err != nil || !created {
		t.Fatalf("first apply: created=%v err=%v", created, err)
	}
	if _, created, err := d.Apply(p); err != nil || !created {
		t.Fatalf("second apply: created=%v err=%v, want a fresh alert", created, err)
	}
	if len(store.all()) != 2 {
		t.Errorf("got %d alerts, want 2 separate records", len(store.all()))
	}
}

func TestApplyDistinctKeysDoNotMerge(t *testing.T) {
	store := &memAlerts{}
	d := newDeduplicator(store)

	if _, _, err := d.Apply(bruteProposal("1.1.1.1", 1)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := d.Apply(bruteProposal("2.2.2.2", 2)); err != nil {
		t.Fatal(err)
	}
	if len(store.all()) != 2 {
		t.Errorf("got %d alerts for two IPs, want 2", len(store.all()))
	}
}

func TestApplyReleasesKeyLocks(t *testing.T) {
	store := &memAlerts{}
	d := newDeduplicator(store)

	for i := 0; i < 50; i++ {
		ip := fmt.Sprintf("10.0.0.%d", i)
		if _, _, err := d.Apply(bruteProposal(ip, int64(i+1))); err != nil {
			t.Fatalf("Apply(%s): %v", ip, err)
		}
	}

	d.mu.Lock()
	held := len(d.locks)
	d.mu.Unlock()
	if held != 0 {
		t.Errorf("lock map holds %d entries after all applies returned, want 0", held)
	}
}

func TestMergeRetriesAfterUpdateFailure(t *testing.T) {
	store := &flakyAlerts{}
	d := newDeduplicator(store)

	if _, _, err := d.Apply(bruteProposal("1.1.1.1", 1)); err != nil {
		t.Fatalf("create: %v", err)
	}

	// The merge's first UpdateAlert fails; the retry re-reads and applies.
	a, created, err := d.Apply(bruteProposal("1.1.1.1", 2))
	if err != nil {
		t.Fatalf("merge with flaky store: %v", err)
	}
	if created {
		t.Error("should have merged")
	}
	if a.TriggerCount != 2 {
		t.Errorf("trigger_count = %d, want 2 after retry", a.TriggerCount)
	}
	stored := store.all()
	if len(stored) != 1 || stored[0].TriggerCount != 2 {
		t.Errorf("stored = %+v, want single alert with count 2", stored)
	}
}
