package storage

import (
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/logwarden/logwarden/internal/types"
)

func TestCreateUserAssignsUUID(t *testing.T) {
	store := newTestSQLite(t)

	u := &types.User{Username: "alice", PasswordHash: "x", Role: "auditor"}
	if err := store.CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" {
		t.Fatal("CreateUser did not assign an id")
	}

	got, err := store.UserByUsername("alice")
	if err != nil {
		t.Fatalf("UserByUsername: %v", err)
	}
	if got == nil || got.ID != u.ID || got.Role != "auditor" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestUserByUsernameMissingReturnsNil(t *testing.T) {
	store := newTestSQLite(t)
	got, err := store.UserByUsername("nobody")
	if err != nil {
		t.Fatalf("UserByUsername: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestEnsureDefaultAdmin(t *testing.T) {
	store := newTestSQLite(t)

	created, err := store.EnsureDefaultAdmin()
	if err != nil {
		t.Fatalf("EnsureDefaultAdmin: %v", err)
	}
	if !created {
		t.Fatal("expected admin to be created on empty database")
	}

	admin, err := store.UserByUsername("admin")
	if err != nil {
		t.Fatalf("UserByUsername: %v", err)
	}
	if admin == nil || admin.Role != "admin" {
		t.Fatalf("admin user missing or wrong role: %+v", admin)
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("logwarden")) != nil {
		t.Error("default admin password does not verify")
	}

	// Second call is a no-op.
	created, err = store.EnsureDefaultAdmin()
	if err != nil {
		t.Fatalf("EnsureDefaultAdmin again: %v", err)
	}
	if created {
		t.Error("admin should not be recreated")
	}
}

func TestRecordAndListOperations(t *testing.T) {
	store := newTestSQLite(t)

	for i := 0; i < 3; i++ {
		err := store.RecordOperation(&types.OperationLog{
			UserID: "u-1", Username: "admin", Action: "UPDATE_ALERT_STATUS",
			ResourceType: "alert", ResourceID: "1", Result: "SUCCESS",
		})
		if err != nil {
			t.Fatalf("RecordOperation: %v", err)
		}
	}
	err := store.RecordOperation(&types.OperationLog{
		UserID: "u-2", Username: "alice", Action: "LOGIN", Result: "SUCCESS",
	})
	if err != nil {
		t.Fatalf("RecordOperation: %v", err)
	}

	ops, total, err := store.ListOperations(OperationFilter{UserID: "u-1", Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("ListOperations: %v", err)
	}
	if total != 3 || len(ops) != 3 {
		t.Errorf("got total=%d len=%d, want 3", total, len(ops))
	}

	ops, total, err = store.ListOperations(OperationFilter{Action: "LOGIN", Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("ListOperations by action: %v", err)
	}
	if total != 1 || len(ops) != 1 || ops[0].Username != "alice" {
		t.Errorf("action filter got total=%d ops=%+v", total, ops)
	}
}
