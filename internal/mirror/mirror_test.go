package mirror

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"neonchat/internal/models"
)

func newTestMirror(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "mirror_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	store, err := Open(filepath.Join(tmpDir, "mirror.db"))
	if err != nil {
		t.Fatalf("failed to open mirror: %v", err)
	}
	return store
}

func TestMirror(t *testing.T) {
	store := newTestMirror(t)

	t.Run("Users", func(t *testing.T) {
		u := models.User{UID: "u1", Name: "Alice", Email: "alice@example.com", CreatedAt: time.Now().UnixMilli()}
		if err := store.SaveUser(u); err != nil {
			t.Fatalf("save user failed: %v", err)
		}

		// Save is an upsert on the primary key.
		u.Name = "Alice B"
		if err := store.SaveUser(u); err != nil {
			t.Fatalf("re-save user failed: %v", err)
		}

		var row UserRow
		if err := store.db.First(&row, "uid = ?", "u1").Error; err != nil {
			t.Fatal(err)
		}
		if row.Name != "Alice B" {
			t.Errorf("expected updated name, got %q", row.Name)
		}

		if err := store.SetUserBlocked("u1", true); err != nil {
			t.Fatalf("block failed: %v", err)
		}
		if err := store.db.First(&row, "uid = ?", "u1").Error; err != nil {
			t.Fatal(err)
		}
		if !row.Blocked {
			t.Error("blocked flag not written")
		}

		if err := store.DeleteUser("u1"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		var count int64
		store.db.Model(&UserRow{}).Where("uid = ?", "u1").Count(&count)
		if count != 0 {
			t.Errorf("user row survived delete")
		}
	})

	t.Run("Messages", func(t *testing.T) {
		m := models.Message{Text: "hi", SenderID: "u1", Timestamp: time.Now().UnixMilli()}
		if err := store.SaveMessage("u1_u2", m); err != nil {
			t.Fatalf("save message failed: %v", err)
		}

		var count int64
		store.db.Model(&MessageRow{}).Where("chat_id = ?", "u1_u2").Count(&count)
		if count != 1 {
			t.Errorf("expected 1 message row, got %d", count)
		}
	})

	t.Run("Rooms", func(t *testing.T) {
		r := models.Room{Code: "ABCD2345", CreatedBy: "u1", MaxMembers: 15, CreatedAt: time.Now().UnixMilli()}
		if err := store.SaveRoom(r); err != nil {
			t.Fatalf("save room failed: %v", err)
		}
		if err := store.DeleteRoom("ABCD2345"); err != nil {
			t.Fatalf("delete room failed: %v", err)
		}

		var count int64
		store.db.Model(&PrivateChatRow{}).Count(&count)
		if count != 0 {
			t.Errorf("room row survived delete")
		}
	})
}
