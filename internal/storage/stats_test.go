package storage

import (
	"testing"
	"time"

	"github.com/logwarden/logwarden/internal/types"
)

// ---------------------------------------------------------------------------
// Statistics queries
// ---------------------------------------------------------------------------

func TestCountLogsHonorsTimeRange(t *testing.T) {
	store := newTestSQLite(t)
	now := time.Now()

	insertEvent(t, store, "nginx", types.LevelInfo, now, "1.1.1.1", "", "recent")
	insertEvent(t, store, "nginx", types.LevelInfo, now.Add(-time.Minute), "1.1.1.1", "", "recent too")
	insertEvent(t, store, "nginx", types.LevelInfo, now.Add(-48*time.Hour), "1.1.1.1", "", "old")

	start := now.Add(-time.Hour)
	n, err := store.CountLogs(&start, nil)
	if err != nil {
		t.Fatalf("CountLogs: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2 events inside the range", n)
	}

	all, err := store.CountLogs(nil, nil)
	if err != nil {
		t.Fatalf("CountLogs all: %v", err)
	}
	if all != 3 {
		t.Errorf("unbounded count = %d, want 3", all)
	}
}

func TestCountLogsByLevelGroups(t *testing.T) {
	store := newTestSQLite(t)
	now := time.Now()

	for i := 0; i < 3; i++ {
		insertEvent(t, store, "app", types.LevelInfo, now, "", "", "ok")
	}
	insertEvent(t, store, "app", types.LevelError, now, "", "", "boom")

	buckets, err := store.CountLogsByLevel(nil, nil)
	if err != nil {
		t.Fatalf("CountLogsByLevel: %v", err)
	}
	got := map[string]int{}
	for _, b := range buckets {
		got[b.Key] = b.Count
	}
	if got["INFO"] != 3 || got["ERROR"] != 1 {
		t.Errorf("by level = %v, want INFO=3 ERROR=1", got)
	}
}

func TestCountLogsBySourceTopNOrdering(t *testing.T) {
	store := newTestSQLite(t)
	now := time.Now()

	for i := 0; i < 5; i++ {
		insertEvent(t, store, "web", types.LevelInfo, now, "", "", "hit")
	}
	for i := 0; i < 3; i++ {
		insertEvent(t, store, "db", types.LevelInfo, now, "", "", "query")
	}
	insertEvent(t, store, "cron", types.LevelInfo, now, "", "", "tick")

	buckets, err := store.CountLogsBySource(nil, nil, 2)
	if err != nil {
		t.Fatalf("CountLogsBySource: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("got %d sources, want top 2", len(buckets))
	}
	if buckets[0].Key != "web" || buckets[0].Count != 5 {
		t.Errorf("top source = %+v, want web with 5", buckets[0])
	}
	if buckets[1].Key != "db" || buckets[1].Count != 3 {
		t.Errorf("second source = %+v, want db with 3", buckets[1])
	}
}

func TestTopLogIPsSkipsEmptyIP(t *testing.T) {
	store := newTestSQLite(t)
	now := time.Now()

	for i := 0; i < 4; i++ {
		insertEvent(t, store, "web", types.LevelInfo, now, "9.9.9.9", "", "hit")
	}
	insertEvent(t, store, "web", types.LevelInfo, now, "8.8.8.8", "", "hit")
	insertEvent(t, store, "cron", types.LevelInfo, now, "", "", "no ip")

	buckets, err := store.TopLogIPs(nil, nil, 10)
	if err != nil {
		t.Fatalf("TopLogIPs: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("got %d ips, want 2 (blank IPs skipped)", len(buckets))
	}
	if buckets[0].Key != "9.9.9.9" || buckets[0].Count != 4 {
		t.Errorf("top ip = %+v, want 9.9.9.9 with 4", buckets[0])
	}
}

func TestCountLogsByTimeBucketsByDay(t *testing.T) {
	store := newTestSQLite(t)
	now := time.Now()

	insertEvent(t, store, "app", types.LevelInfo, now, "", "", "today a")
	insertEvent(t, store, "app", types.LevelInfo, now.Add(-time.Minute), "", "", "today b")
	insertEvent(t, store, "app", types.LevelInfo, now.Add(-48*time.Hour), "", "", "two days ago")

	buckets, err := store.CountLogsByTime(now.Add(-72*time.Hour), now, "day")
	if err != nil {
		t.Fatalf("CountLogsByTime: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("got %d day buckets, want 2", len(buckets))
	}
	total := 0
	for _, b := range buckets {
		total += b.Count
	}
	if total != 3 {
		t.Errorf("bucket counts sum to %d, want 3", total)
	}
	// ORDER BY slot puts the older day first.
	if buckets[0].Count != 1 || buckets[1].Count != 2 {
		t.Errorf("buckets = %v, want oldest-first with counts 1 then 2", buckets)
	}
}

func TestCriticalOpenAlertCount(t *testing.T) {
	store := newTestSQLite(t)

	open := makeAlert("10.0.0.1")
	open.AlertLevel = types.AlertCritical
	if err := store.CreateAlert(open); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	resolved := makeAlert("10.0.0.2")
	resolved.AlertLevel = types.AlertCritical
	if err := store.CreateAlert(resolved); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	if _, err := store.SetAlertStatus(resolved.ID, types.StatusResolved, "", ""); err != nil {
		t.Fatalf("SetAlertStatus: %v", err)
	}

	medium := makeAlert("10.0.0.3")
	if err := store.CreateAlert(medium); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	n, err := store.CriticalOpenAlertCount()
	if err != nil {
		t.Fatalf("CriticalOpenAlertCount: %v", err)
	}
	if n != 1 {
		t.Errorf("critical open count = %d, want 1", n)
	}
}
