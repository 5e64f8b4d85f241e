package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"neonchat/internal/mirror"
	"neonchat/internal/models"
	"neonchat/internal/rtdb"
)

func newTestManager(t *testing.T) (*Manager, *rtdb.Store) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "session_test")
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

	verifier, err := NewVerifier(store)
	if err != nil {
		t.Fatal(err)
	}

	mgr, err := NewManager(context.Background(), store, mir, verifier, Config{
		AdminUser:     "admin",
		AdminPassword: "operator-secret",
		TokenExpiry:   time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	return mgr, store
}

func validRegistration() RegistrationRequest {
	return RegistrationRequest{
		Name:     "Alice",
		Email:    "alice@example.com",
		Phone:    "+998901234567",
		Password: "secret123",
	}
}

func TestRegister(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mgr, store := newTestManager(t)

		sess, err := mgr.Register(validRegistration())
		if err != nil {
			t.Fatalf("register failed: %v", err)
		}
		if sess.User.UID == "" {
			t.Error("no uid assigned")
		}
		if sess.User.Avatar != "A" {
			t.Errorf("expected avatar glyph A, got %q", sess.User.Avatar)
		}
		if !sess.User.Online {
			t.Error("new user should be online")
		}

		var stored models.User
		if err := store.Get("users/"+sess.User.UID, &stored); err != nil {
			t.Fatalf("profile not written to primary store: %v", err)
		}
		if stored.CreatedAt == 0 {
			t.Error("createdAt not set")
		}
	})

	t.Run("FieldValidation", func(t *testing.T) {
		mgr, _ := newTestManager(t)

		cases := []struct {
			name   string
			mutate func(*RegistrationRequest)
		}{
			{"ShortPassword", func(r *RegistrationRequest) { r.Password = "12345" }},
			{"WrongPhonePrefix", func(r *RegistrationRequest) { r.Phone = "+1555123456" }},
			{"BadEmail", func(r *RegistrationRequest) { r.Email = "not-an-email" }},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				req := validRegistration()
				tc.mutate(&req)

				_, err := mgr.Register(req)
				var verr *models.ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("expected ValidationError, got %v", err)
				}
			})
		}
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		mgr, _ := newTestManager(t)

		if _, err := mgr.Register(validRegistration()); err != nil {
			t.Fatal(err)
		}
		_, err := mgr.Register(validRegistration())
		var aerr *models.AuthError
		if !errors.As(err, &aerr) {
			t.Fatalf("expected AuthError, got %v", err)
		}
		if aerr.Message != "Email already registered" {
			t.Errorf("wrong message: %q", aerr.Message)
		}
	})

	t.Run("RegistrationsDisabled", func(t *testing.T) {
		mgr, store := newTestManager(t)

		if err := store.Put("settings/allowRegistrations", false); err != nil {
			t.Fatal(err)
		}

		_, err := mgr.Register(validRegistration())
		var aerr *models.AuthError
		if !errors.As(err, &aerr) {
			t.Errorf("expected AuthError, got %v", err)
		}
	})
}

func TestSignIn(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mgr, _ := newTestManager(t)

		reg, err := mgr.Register(validRegistration())
		if err != nil {
			t.Fatal(err)
		}
		mgr.SignOut(reg.Token)

		sess, err := mgr.SignIn("alice@example.com", "secret123")
		if err != nil {
			t.Fatalf("sign-in failed: %v", err)
		}
		if sess.User.UID != reg.User.UID {
			t.Errorf("uid mismatch: %s vs %s", sess.User.UID, reg.User.UID)
		}
		if !sess.User.Online {
			t.Error("presence not flipped online")
		}

		got, err := mgr.Get(sess.Token)
		if err != nil {
			t.Fatalf("token not resolvable: %v", err)
		}
		if got.Admin {
			t.Error("regular session flagged admin")
		}
	})

	t.Run("WrongPassword", func(t *testing.T) {
		mgr, _ := newTestManager(t)
		if _, err := mgr.Register(validRegistration()); err != nil {
			t.Fatal(err)
		}

		_, err := mgr.SignIn("alice@example.com", "wrong-password")
		var aerr *models.AuthError
		if !errors.As(err, &aerr) {
			t.Fatalf("expected AuthError, got %v", err)
		}
		if aerr.Message != "Incorrect password" {
			t.Errorf("wrong message: %q", aerr.Message)
		}
	})

	t.Run("UnknownUser", func(t *testing.T) {
		mgr, _ := newTestManager(t)

		_, err := mgr.SignIn("ghost@example.com", "whatever")
		var aerr *models.AuthError
		if !errors.As(err, &aerr) {
			t.Errorf("expected AuthError, got %v", err)
		}
	})

	t.Run("BlockedAccount", func(t *testing.T) {
		mgr, store := newTestManager(t)

		reg, err := mgr.Register(validRegistration())
		if err != nil {
			t.Fatal(err)
		}
		mgr.SignOut(reg.Token)

		if err := store.Update("users/"+reg.User.UID, map[string]any{"blocked": true}); err != nil {
			t.Fatal(err)
		}

		_, err = mgr.SignIn("alice@example.com", "secret123")
		var aerr *models.AuthError
		if !errors.As(err, &aerr) {
			t.Fatalf("expected AuthError for blocked account, got %v", err)
		}
	})
}

func TestSignOut(t *testing.T) {
	mgr, store := newTestManager(t)

	sess, err := mgr.Register(validRegistration())
	if err != nil {
		t.Fatal(err)
	}

	mgr.SignOut(sess.Token)

	if _, err := mgr.Get(sess.Token); err == nil {
		t.Error("token still live after sign-out")
	}

	var user models.User
	if err := store.Get("users/"+sess.User.UID, &user); err != nil {
		t.Fatal(err)
	}
	if user.Online {
		t.Error("presence still online after sign-out")
	}
}

func TestAdminSignIn(t *testing.T) {
	mgr, _ := newTestManager(t)

	sess, err := mgr.AdminSignIn("admin", "operator-secret")
	if err != nil {
		t.Fatalf("admin sign-in failed: %v", err)
	}
	if !sess.Admin {
		t.Error("session not flagged admin")
	}
	if sess.User.UID != models.AdminUID {
		t.Errorf("expected admin uid, got %s", sess.User.UID)
	}

	if _, err := mgr.AdminSignIn("admin", "nope"); err == nil {
		t.Error("expected failure for wrong admin password")
	}
}

func TestRevoke(t *testing.T) {
	mgr, _ := newTestManager(t)

	sess, err := mgr.Register(validRegistration())
	if err != nil {
		t.Fatal(err)
	}

	mgr.Revoke(sess.User.UID)

	if _, err := mgr.Get(sess.Token); err == nil {
		t.Error("token survived revoke")
	}
}
