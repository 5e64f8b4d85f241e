package rooms

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"neonchat/internal/mirror"
	"neonchat/internal/models"
	"neonchat/internal/rtdb"
	"neonchat/internal/session"
)

func newTestRegistry(t *testing.T) (*Registry, *rtdb.Store) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "rooms_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	store, err := rtdb.Open(filepath.Join(tmpDir, "rtdb.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	mir, err := mirror.Open(filepath.Join(tmpDir, "mirror.db"))
	if err != nil {
		t.Fatal(err)
	}

	return NewRegistry(store, mir), store
}

func userSession(uid, name string) *session.Session {
	return &session.Session{
		Token: "token-" + uid,
		User:  models.User{UID: uid, Name: name, Email: uid + "@example.com"},
	}
}

func adminSession() *session.Session {
	return &session.Session{
		Token: "token-admin",
		User:  models.User{UID: models.AdminUID, Name: models.AdminName},
		Admin: true,
	}
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := generateCode()
		if len(code) != CodeLength {
			t.Fatalf("expected %d characters, got %q", CodeLength, code)
		}
		for _, r := range code {
			if !strings.ContainsRune(codeAlphabet, r) {
				t.Fatalf("code %q contains %q outside the alphabet", code, r)
			}
		}
	}
}

func TestCreate(t *testing.T) {
	t.Run("CreatorIsSoleMember", func(t *testing.T) {
		reg, store := newTestRegistry(t)

		room, err := reg.Create(userSession("u1", "Alice"))
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if room.MaxMembers != DefaultCapacity {
			t.Errorf("expected capacity %d, got %d", DefaultCapacity, room.MaxMembers)
		}
		if room.MemberCount() != 1 || !room.HasMember("u1") {
			t.Errorf("creator not sole member: %+v", room.Members)
		}

		var stored models.Room
		if err := store.Get("privateChats/"+room.Code, &stored); err != nil {
			t.Fatalf("room record missing: %v", err)
		}
		if stored.CreatedBy != "u1" {
			t.Errorf("wrong creator: %s", stored.CreatedBy)
		}
	})

	t.Run("RequiresSession", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		_, err := reg.Create(nil)
		var aerr *models.AuthError
		if !errors.As(err, &aerr) {
			t.Errorf("expected AuthError, got %v", err)
		}
	})

	t.Run("RetriesOnCollision", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		first, err := reg.Create(userSession("u1", "Alice"))
		if err != nil {
			t.Fatal(err)
		}

		// Force the generator to hit the existing code once before
		// producing a fresh one.
		calls := 0
		reg.genCode = func() string {
			calls++
			if calls == 1 {
				return first.Code
			}
			return "FRESH234"
		}

		second, err := reg.Create(userSession("u2", "Bob"))
		if err != nil {
			t.Fatalf("create after collision failed: %v", err)
		}
		if second.Code != "FRESH234" {
			t.Errorf("collision not retried, got code %s", second.Code)
		}
	})
}

func TestJoin(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		room, err := reg.Create(userSession("u1", "Alice"))
		if err != nil {
			t.Fatal(err)
		}

		res, err := reg.Join(userSession("u2", "Bob"), room.Code)
		if err != nil {
			t.Fatalf("join failed: %v", err)
		}
		if res.AlreadyMember {
			t.Error("fresh join reported as already member")
		}
		if res.Room.MemberCount() != 2 {
			t.Errorf("expected 2 members, got %d", res.Room.MemberCount())
		}
	})

	t.Run("CaseAndWhitespaceInsensitive", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		room, err := reg.Create(userSession("u1", "Alice"))
		if err != nil {
			t.Fatal(err)
		}

		sloppy := "  " + strings.ToLower(room.Code) + " "
		if _, err := reg.Join(userSession("u2", "Bob"), sloppy); err != nil {
			t.Errorf("normalized code rejected: %v", err)
		}
	})

	t.Run("UnknownCode", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		_, err := reg.Join(userSession("u1", "Alice"), "NOSUCHRM")
		var nerr *models.NotFoundError
		if !errors.As(err, &nerr) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
		if !errors.Is(err, models.ErrNotFound) {
			t.Error("NotFoundError does not match sentinel")
		}
	})

	t.Run("AlreadyMemberIsIdempotent", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		room, err := reg.Create(userSession("u1", "Alice"))
		if err != nil {
			t.Fatal(err)
		}

		res, err := reg.Join(userSession("u1", "Alice"), room.Code)
		if err != nil {
			t.Fatalf("rejoin returned error: %v", err)
		}
		if !res.AlreadyMember {
			t.Error("rejoin not reported as already member")
		}
		if res.Room.MemberCount() != 1 {
			t.Errorf("rejoin changed member count: %d", res.Room.MemberCount())
		}
	})

	t.Run("CapacityEnforced", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		room, err := reg.Create(userSession("u1", "Alice"))
		if err != nil {
			t.Fatal(err)
		}

		for i := 2; i <= DefaultCapacity; i++ {
			uid := fmt.Sprintf("u%d", i)
			if _, err := reg.Join(userSession(uid, "User "+uid), room.Code); err != nil {
				t.Fatalf("join %d failed: %v", i, err)
			}
		}

		_, err = reg.Join(userSession("u16", "Late"), room.Code)
		var cerr *models.CapacityError
		if !errors.As(err, &cerr) {
			t.Fatalf("expected CapacityError, got %v", err)
		}

		loaded, err := reg.Load(room.Code)
		if err != nil {
			t.Fatal(err)
		}
		if loaded.MemberCount() != DefaultCapacity {
			t.Errorf("rejected join changed membership: %d", loaded.MemberCount())
		}
	})
}

func TestList(t *testing.T) {
	reg, _ := newTestRegistry(t)

	a, err := reg.Create(userSession("u1", "Alice"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := reg.Create(userSession("u2", "Bob"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Join(userSession("u3", "Carol"), b.Code); err != nil {
		t.Fatal(err)
	}

	rooms, err := reg.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}

	byCode := map[string]models.Room{}
	for _, room := range rooms {
		byCode[room.Code] = room
	}
	if byCode[a.Code].MemberCount() != 1 {
		t.Errorf("room %s member count wrong", a.Code)
	}
	if byCode[b.Code].MemberCount() != 2 {
		t.Errorf("room %s member count wrong", b.Code)
	}
}

func TestDelete(t *testing.T) {
	t.Run("AdminOnly", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		room, err := reg.Create(userSession("u1", "Alice"))
		if err != nil {
			t.Fatal(err)
		}

		err = reg.Delete(userSession("u1", "Alice"), room.Code)
		var aerr *models.AuthError
		if !errors.As(err, &aerr) {
			t.Errorf("expected AuthError for non-admin delete, got %v", err)
		}
	})

	t.Run("RemovesMessagesAndMembers", func(t *testing.T) {
		reg, store := newTestRegistry(t)

		room, err := reg.Create(userSession("u1", "Alice"))
		if err != nil {
			t.Fatal(err)
		}

		msg := models.Message{Text: "hi", SenderID: "u1", SenderName: "Alice"}
		if _, err := store.Push("privateChats/"+room.Code+"/messages", &msg); err != nil {
			t.Fatal(err)
		}

		if err := reg.Delete(adminSession(), room.Code); err != nil {
			t.Fatalf("delete failed: %v", err)
		}

		if err := store.Get("privateChats/"+room.Code, &models.Room{}); !errors.Is(err, models.ErrNotFound) {
			t.Error("room record survived delete")
		}
		snap, err := store.List("privateChats/" + room.Code)
		if err != nil {
			t.Fatal(err)
		}
		if len(snap) != 0 {
			t.Errorf("subtree survived delete: %d entries", len(snap))
		}

		if err := reg.Delete(adminSession(), room.Code); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("second delete should report not found, got %v", err)
		}
	})
}
