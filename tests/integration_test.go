package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/logwarden/logwarden/internal/engine"
	"github.com/logwarden/logwarden/internal/storage"
	"github.com/logwarden/logwarden/internal/types"
)

// newPipeline wires a real store and engine the way the daemon does.
func newPipeline(t *testing.T) (*storage.SQLite, *engine.Engine) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.SeedDefaultConfigs(); err != nil {
		t.Fatalf("SeedDefaultConfigs: %v", err)
	}

	eng := engine.New(store, store, store, zerolog.Nop())
	return store, eng
}

func ingest(t *testing.T, store *storage.SQLite, eng *engine.Engine, level types.LogLevel, ip, user, msg string) *types.LogEvent {
	t.Helper()
	ev := &types.LogEvent{
		Source: "sshd", Level: level, Timestamp: time.Now(),
		IP: ip, User: user, Message: msg,
	}
	if err := store.InsertLog(ev); err != nil {
		t.Fatalf("InsertLog: %v", err)
	}
	if _, err := eng.RunOnEvent(context.Background(), ev.ID); err != nil {
		t.Fatalf("RunOnEvent: %v", err)
	}
	return ev
}

// ---------------------------------------------------------------------------
// End-to-end detection scenarios
// ---------------------------------------------------------------------------

func TestE2E_BruteForceLifecycle(t *testing.T) {
	store, eng := newPipeline(t)

	// Four failures stay quiet, the fifth fires.
	for i := 0; i < 4; i++ {
		ingest(t, store, eng, types.LevelError, "203.0.113.5", "root", "login failed for root")
	}
	alerts, _, err := store.ListAlerts(storage.AlertFilter{Type: types.AlertBruteForce, Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("got %d alerts below threshold, want 0", len(alerts))
	}

	ingest(t, store, eng, types.LevelError, "203.0.113.5", "root", "login failed for root")
	alerts, _, err = store.ListAlerts(storage.AlertFilter{Type: types.AlertBruteForce, Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts at threshold, want 1", len(alerts))
	}
	a := alerts[0]
	if a.TriggerCount != 1 || a.Status != types.StatusUnhandled {
		t.Errorf("fresh alert = count %d status %s", a.TriggerCount, a.Status)
	}

	// A sixth failure merges instead of duplicating.
	ingest(t, store, eng, types.LevelError, "203.0.113.5", "root", "login failed for root")
	alerts, _, _ = store.ListAlerts(storage.AlertFilter{Type: types.AlertBruteForce, Page: 1, PageSize: 20})
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts after merge, want 1", len(alerts))
	}
	if alerts[0].TriggerCount != 2 {
		t.Errorf("trigger_count = %d, want 2", alerts[0].TriggerCount)
	}

	// Resolving closes the window; the next crossing opens a new alert.
	if _, err := store.SetAlertStatus(a.ID, types.StatusResolved, "op-1", "blocked at firewall"); err != nil {
		t.Fatalf("SetAlertStatus: %v", err)
	}
	ingest(t, store, eng, types.LevelError, "203.0.113.5", "root", "login failed for root")
	alerts, _, _ = store.ListAlerts(storage.AlertFilter{Type: types.AlertBruteForce, Page: 1, PageSize: 20})
	if len(alerts) != 2 {
		t.Errorf("got %d alerts after resolve, want a second record", len(alerts))
	}
}

func TestE2E_ConfigTuningChangesThreshold(t *testing.T) {
	store, eng := newPipeline(t)

	err := store.UpsertConfig(&types.SystemConfig{
		ConfigKey: types.ConfigBruteForceThreshold, ConfigValue: "3",
		Category: "alert", ValueType: "int", IsActive: true,
	})
	if err != nil {
		t.Fatalf("UpsertConfig: %v", err)
	}

	for i := 0; i < 3; i++ {
		ingest(t, store, eng, types.LevelError, "198.51.100.9", "root", "authentication failed for root")
	}
	alerts, _, err := store.ListAlerts(storage.AlertFilter{Type: types.AlertBruteForce, Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Errorf("got %d alerts with threshold 3, want 1", len(alerts))
	}
}

func TestE2E_MalformedConfigFallsBack(t *testing.T) {
	store, eng := newPipeline(t)

	err := store.UpsertConfig(&types.SystemConfig{
		ConfigKey: types.ConfigBruteForceThreshold, ConfigValue: "abc",
		Category: "alert", ValueType: "int", IsActive: true,
	})
	if err != nil {
		t.Fatalf("UpsertConfig: %v", err)
	}

	// Default threshold of 5 applies despite the junk value.
	for i := 0; i < 4; i++ {
		ingest(t, store, eng, types.LevelError, "198.51.100.9", "root", "login failed")
	}
	alerts, _, _ := store.ListAlerts(storage.AlertFilter{Type: types.AlertBruteForce, Page: 1, PageSize: 20})
	if len(alerts) != 0 {
		t.Fatalf("malformed config lowered the threshold: %+v", alerts)
	}

	ingest(t, store, eng, types.LevelError, "198.51.100.9", "root", "login failed")
	alerts, _, _ = store.ListAlerts(storage.AlertFilter{Type: types.AlertBruteForce, Page: 1, PageSize: 20})
	if len(alerts) != 1 {
		t.Errorf("got %d alerts at default threshold, want 1", len(alerts))
	}
}

func TestE2E_SuspiciousAccessOnSweep(t *testing.T) {
	store, eng := newPipeline(t)

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"} {
		ev := &types.LogEvent{
			Source: "web", Level: types.LevelInfo, Timestamp: time.Now(),
			IP: ip, User: "alice", Message: "login success",
		}
		if err := store.InsertLog(ev); err != nil {
			t.Fatalf("InsertLog: %v", err)
		}
	}

	if _, err := eng.RunScheduled(context.Background()); err != nil {
		t.Fatalf("RunScheduled: %v", err)
	}

	alerts, _, err := store.ListAlerts(storage.AlertFilter{Type: types.AlertSuspiciousAccess, Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d suspicious access alerts, want 1", len(alerts))
	}
	if alerts[0].RelatedUser != "alice" || alerts[0].AlertLevel != types.AlertHigh {
		t.Errorf("alert = %+v, want HIGH for alice", alerts[0])
	}
}

func TestE2E_ConcurrentIngestSingleAlert(t *testing.T) {
	store, eng := newPipeline(t)

	// Preload enough failures to cross the threshold, then fire
	// evaluations concurrently for a burst of new events.
	var ids []int64
	for i := 0; i < 8; i++ {
		ev := &types.LogEvent{
			Source: "sshd", Level: types.LevelError, Timestamp: time.Now(),
			IP: "192.0.2.77", User: "root", Message: fmt.Sprintf("login failed attempt %d", i),
		}
		if err := store.InsertLog(ev); err != nil {
			t.Fatalf("InsertLog: %v", err)
		}
		ids = append(ids, ev.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := eng.RunOnEvent(context.Background(), id); err != nil {
				t.Errorf("RunOnEvent(%d): %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	alerts, _, err := store.ListAlerts(storage.AlertFilter{Type: types.AlertBruteForce, Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts from concurrent runs, want exactly 1", len(alerts))
	}
	if alerts[0].TriggerCount != len(ids) {
		t.Errorf("trigger_count = %d, want %d", alerts[0].TriggerCount, len(ids))
	}
}

func TestE2E_AlertHookFiresOnCreation(t *testing.T) {
	store, eng := newPipeline(t)

	var mu sync.Mutex
	var created []int64
	eng.OnAlert(func(a *types.Alert, isNew bool) {
		if isNew {
			mu.Lock()
			created = append(created, a.ID)
			mu.Unlock()
		}
	})

	ingest(t, store, eng, types.LevelError, "", "", "disk failure")
	ingest(t, store, eng, types.LevelError, "", "", "disk failure again")

	mu.Lock()
	defer mu.Unlock()
	if len(created) != 2 {
		t.Errorf("hook fired %d times, want once per error event", len(created))
	}
}
