package storage

import (
	"testing"
	"time"

	"github.com/logwarden/logwarden/internal/types"
)

func makeAlert(ip string) *types.Alert {
	return &types.Alert{
		AlertType:     types.AlertBruteForce,
		AlertLevel:    types.AlertMedium,
		Title:         "Possible brute force attack from " + ip,
		Description:   "repeated failures",
		RelatedIP:     ip,
		RelatedLogIDs: []int64{1, 2, 3},
	}
}

// ---------------------------------------------------------------------------
// Alert CRUD
// ---------------------------------------------------------------------------

func TestCreateAlertDefaults(t *testing.T) {
	store := newTestSQLite(t)

	a := makeAlert("10.0.0.1")
	if err := store.CreateAlert(a); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	if a.ID == 0 {
		t.Fatal("CreateAlert did not assign an id")
	}

	got, err := store.AlertByID(a.ID)
	if err != nil {
		t.Fatalf("AlertByID: %v", err)
	}
	if got == nil {
		t.Fatal("AlertByID returned nil")
	}
	if got.Status != types.StatusUnhandled {
		t.Errorf("status = %s, want UNHANDLED", got.Status)
	}
	if got.TriggerCount != 1 {
		t.Errorf("trigger_count = %d, want 1", got.TriggerCount)
	}
	if len(got.RelatedLogIDs) != 3 {
		t.Errorf("related_log_ids = %v, want 3 entries", got.RelatedLogIDs)
	}
}

func TestUpdateAlertPersistsChanges(t *testing.T) {
	store := newTestSQLite(t)

	a := makeAlert("10.0.0.1")
	if err := store.CreateAlert(a); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	a.TriggerCount = 4
	a.RelatedLogIDs = append(a.RelatedLogIDs, 9)
	a.Description = "still going"
	if err := store.UpdateAlert(a); err != nil {
		t.Fatalf("UpdateAlert: %v", err)
	}

	got, _ := store.AlertByID(a.ID)
	if got.TriggerCount != 4 || got.Description != "still going" || len(got.RelatedLogIDs) != 4 {
		t.Errorf("update not persisted: %+v", got)
	}
}

func TestUpdateAlertMissingErrors(t *testing.T) {
	store := newTestSQLite(t)
	a := makeAlert("10.0.0.1")
	a.ID = 777
	if err := store.UpdateAlert(a); err == nil {
		t.Error("UpdateAlert on missing row should error")
	}
}

// ---------------------------------------------------------------------------
// Open alert lookup
// ---------------------------------------------------------------------------

func TestFindOpenAlertMatchesTypeKeyAndWindow(t *testing.T) {
	store := newTestSQLite(t)

	a := makeAlert("10.0.0.1")
	if err := store.CreateAlert(a); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	found, err := store.FindOpenAlert(types.AlertBruteForce, "10.0.0.1", "", time.Now().Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("FindOpenAlert: %v", err)
	}
	if found == nil || found.ID != a.ID {
		t.Fatalf("FindOpenAlert = %+v, want alert %d", found, a.ID)
	}

	// Different IP should not match.
	found, _ = store.FindOpenAlert(types.AlertBruteForce, "99.99.99.99", "", time.Now().Add(-5*time.Minute))
	if found != nil {
		t.Errorf("matched wrong IP: %+v", found)
	}

	// Different type should not match.
	found, _ = store.FindOpenAlert(types.AlertErrorLog, "10.0.0.1", "", time.Now().Add(-5*time.Minute))
	if found != nil {
		t.Errorf("matched wrong type: %+v", found)
	}
}

func TestFindOpenAlertIgnoresClosedStatuses(t *testing.T) {
	store := newTestSQLite(t)

	a := makeAlert("10.0.0.1")
	if err := store.CreateAlert(a); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	if _, err := store.SetAlertStatus(a.ID, types.StatusResolved, "", ""); err != nil {
		t.Fatalf("SetAlertStatus: %v", err)
	}

	found, err := store.FindOpenAlert(types.AlertBruteForce, "10.0.0.1", "", time.Now().Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("FindOpenAlert: %v", err)
	}
	if found != nil {
		t.Errorf("matched resolved alert: %+v", found)
	}
}

func TestFindOpenAlertMatchesHandling(t *testing.T) {
	store := newTestSQLite(t)

	a := makeAlert("10.0.0.1")
	if err := store.CreateAlert(a); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	if _, err := store.SetAlertStatus(a.ID, types.StatusHandling, "u-1", "on it"); err != nil {
		t.Fatalf("SetAlertStatus: %v", err)
	}

	found, err := store.FindOpenAlert(types.AlertBruteForce, "10.0.0.1", "", time.Now().Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("FindOpenAlert: %v", err)
	}
	if found == nil {
		t.Error("HANDLING alert should still absorb new firings")
	}
}

// ---------------------------------------------------------------------------
// Status transitions
// ---------------------------------------------------------------------------

func TestSetAlertStatusRecordsHandler(t *testing.T) {
	store := newTestSQLite(t)

	a := makeAlert("10.0.0.1")
	if err := store.CreateAlert(a); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	updated, err := store.SetAlertStatus(a.ID, types.StatusResolved, "user-42", "false positive")
	if err != nil {
		t.Fatalf("SetAlertStatus: %v", err)
	}
	if updated == nil {
		t.Fatal("SetAlertStatus returned nil for existing alert")
	}
	if updated.Status != types.StatusResolved {
		t.Errorf("status = %s, want RESOLVED", updated.Status)
	}
	if updated.HandlerUserID != "user-42" || updated.HandlerNote != "false positive" {
		t.Errorf("handler fields not set: %+v", updated)
	}
	if updated.HandledAt == nil {
		t.Error("handled_at not set")
	}
}

func TestSetAlertStatusMissingReturnsNil(t *testing.T) {
	store := newTestSQLite(t)
	updated, err := store.SetAlertStatus(404, types.StatusResolved, "", "")
	if err != nil {
		t.Fatalf("SetAlertStatus: %v", err)
	}
	if updated != nil {
		t.Errorf("got %+v, want nil for missing alert", updated)
	}
}

// ---------------------------------------------------------------------------
// Listing and counting
// ---------------------------------------------------------------------------

func TestListAlertsFilterByStatus(t *testing.T) {
	store := newTestSQLite(t)

	a1 := makeAlert("1.1.1.1")
	a2 := makeAlert("2.2.2.2")
	if err := store.CreateAlert(a1); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateAlert(a2); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SetAlertStatus(a1.ID, types.StatusIgnored, "", ""); err != nil {
		t.Fatal(err)
	}

	alerts, total, err := store.ListAlerts(AlertFilter{Status: types.StatusUnhandled, Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if total != 1 || len(alerts) != 1 || alerts[0].ID != a2.ID {
		t.Errorf("got total=%d alerts=%+v, want only the unhandled alert", total, alerts)
	}
}

func TestCountAlertsByStatus(t *testing.T) {
	store := newTestSQLite(t)

	for i := 0; i < 3; i++ {
		a := makeAlert("1.1.1.1")
		if err := store.CreateAlert(a); err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			if _, err := store.SetAlertStatus(a.ID, types.StatusResolved, "", ""); err != nil {
				t.Fatal(err)
			}
		}
	}

	counts, err := store.CountAlertsByStatus(nil, nil)
	if err != nil {
		t.Fatalf("CountAlertsByStatus: %v", err)
	}
	if counts["UNHANDLED"] != 2 || counts["RESOLVED"] != 1 {
		t.Errorf("counts = %v, want 2 unhandled / 1 resolved", counts)
	}
}

func TestOpenAlertCount(t *testing.T) {
	store := newTestSQLite(t)

	a := makeAlert("1.1.1.1")
	if err := store.CreateAlert(a); err != nil {
		t.Fatal(err)
	}
	b := makeAlert("2.2.2.2")
	if err := store.CreateAlert(b); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SetAlertStatus(b.ID, types.StatusIgnored, "", ""); err != nil {
		t.Fatal(err)
	}

	n, err := store.OpenAlertCount()
	if err != nil {
		t.Fatalf("OpenAlertCount: %v", err)
	}
	if n != 1 {
		t.Errorf("OpenAlertCount = %d, want 1", n)
	}
}

// ---------------------------------------------------------------------------
// Config storage
// ---------------------------------------------------------------------------

func TestConfigValueRoundTrip(t *testing.T) {
	store := newTestSQLite(t)

	err := store.UpsertConfig(&types.SystemConfig{
		ConfigKey: "alert_brute_force_threshold", ConfigValue: "8",
		Category: "alert", ValueType: "int", IsActive: true,
	})
	if err != nil {
		t.Fatalf("UpsertConfig: %v", err)
	}

	val, ok, err := store.ConfigValue("alert_brute_force_threshold")
	if err != nil {
		t.Fatalf("ConfigValue: %v", err)
	}
	if !ok || val != "8" {
		t.Errorf("ConfigValue = (%q, %v), want (8, true)", val, ok)
	}
}

func TestConfigValueInactiveTreatedAsAbsent(t *testing.T) {
	store := newTestSQLite(t)

	err := store.UpsertConfig(&types.SystemConfig{
		ConfigKey: "alert_error_log_enabled", ConfigValue: "false",
		Category: "alert", ValueType: "boolean", IsActive: false,
	})
	if err != nil {
		t.Fatalf("UpsertConfig: %v", err)
	}

	_, ok, err := store.ConfigValue("alert_error_log_enabled")
	if err != nil {
		t.Fatalf("ConfigValue: %v", err)
	}
	if ok {
		t.Error("inactive config should read as absent")
	}
}

func TestSeedDefaultConfigsKeepsOverrides(t *testing.T) {
	store := newTestSQLite(t)

	err := store.UpsertConfig(&types.SystemConfig{
		ConfigKey: types.ConfigBruteForceThreshold, ConfigValue: "10",
		Category: "alert", ValueType: "int", IsActive: true,
	})
	if err != nil {
		t.Fatalf("UpsertConfig: %v", err)
	}
	if err := store.SeedDefaultConfigs(); err != nil {
		t.Fatalf("SeedDefaultConfigs: %v", err)
	}

	val, ok, _ := store.ConfigValue(types.ConfigBruteForceThreshold)
	if !ok || val != "10" {
		t.Errorf("seed overwrote operator value: (%q, %v)", val, ok)
	}
	if _, ok, _ := store.ConfigValue(types.ConfigErrorLogEnabled); !ok {
		t.Error("seed did not create missing default")
	}
}
