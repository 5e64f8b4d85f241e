// Package session tracks the signed-in principal. It gates every other
// component: the directory, the conversation channel and the room
// registry all take a *Session rather than reading ambient state.
package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"neonchat/internal/content"
	"neonchat/internal/mirror"
	"neonchat/internal/models"
	"neonchat/internal/rtdb"

	"github.com/c-pro/geche"
)

const DefaultTokenExpiry = 12 * time.Hour

type RegistrationRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Session is one signed-in principal. Created by the manager at
// sign-in, torn down at sign-out.
type Session struct {
	Token string
	User  models.User
	Admin bool
}

type Config struct {
	AdminUser     string
	AdminPassword string
	TokenExpiry   time.Duration
}

type Manager struct {
	store    *rtdb.Store
	mirror   *mirror.Store
	verifier *Verifier
	cfg      Config
	sessions geche.Geche[string, *Session]
	log      *slog.Logger
	now      func() time.Time
}

func NewManager(ctx context.Context, store *rtdb.Store, mir *mirror.Store, verifier *Verifier, cfg Config) (*Manager, error) {
	if cfg.AdminUser == "" || cfg.AdminPassword == "" {
		return nil, errors.New("admin credentials are required")
	}
	if cfg.TokenExpiry == 0 {
		cfg.TokenExpiry = DefaultTokenExpiry
	}

	return &Manager{
		store:    store,
		mirror:   mir,
		verifier: verifier,
		cfg:      cfg,
		sessions: geche.NewMapTTLCache[string, *Session](ctx, cfg.TokenExpiry, time.Minute),
		log:      slog.Default(),
		now:      time.Now,
	}, nil
}

// SignIn verifies credentials, refuses blocked accounts and flips the
// account's presence to online.
func (m *Manager) SignIn(email, password string) (*Session, error) {
	uid, err := m.verifier.Verify(email, password)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := m.store.Get("users/"+uid, &user); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, &models.AuthError{Message: "User not found"}
		}
		return nil, &models.BackendError{Op: "load user", Err: err}
	}

	if user.Blocked {
		return nil, &models.AuthError{Message: "Your account has been blocked. Contact admin."}
	}

	if err := m.setPresence(uid, true); err != nil {
		return nil, err
	}
	user.Online = true
	user.LastSeen = m.now().UnixMilli()

	return m.open(user, false)
}

// Register creates the account, the profile record and the mirrored
// row, then signs the new user in. Phone verification is initiated by
// the presentation layer and is not modelled here.
func (m *Manager) Register(req RegistrationRequest) (*Session, error) {
	if !m.registrationsAllowed() {
		return nil, &models.AuthError{Message: "Registrations are currently disabled"}
	}

	if err := content.ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := content.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	if err := content.ValidatePhone(req.Phone); err != nil {
		return nil, err
	}

	uid, err := m.verifier.Create(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, &models.AuthError{Message: "Email already registered"}
		}
		return nil, &models.BackendError{Op: "create credentials", Err: err}
	}

	user, err := models.NewUser(uid, content.Sanitize(req.Name), req.Email, req.Phone)
	if err != nil {
		return nil, err
	}
	now := m.now().UnixMilli()
	user.CreatedAt = now
	user.LastSeen = now
	user.Online = true

	if err := m.store.Put("users/"+uid, user); err != nil {
		return nil, &models.BackendError{Op: "save user", Err: err}
	}

	if err := m.mirror.SaveUser(user); err != nil {
		m.log.Warn("mirror write failed", "table", "users", "uid", uid, "error", err)
	}

	return m.open(user, false)
}

// AdminSignIn checks the fixed operator credential pair. No backing
// store round trip.
func (m *Manager) AdminSignIn(username, password string) (*Session, error) {
	userOK := hmac.Equal([]byte(username), []byte(m.cfg.AdminUser))
	passOK := hmac.Equal([]byte(password), []byte(m.cfg.AdminPassword))
	if !userOK || !passOK {
		return nil, &models.AuthError{Message: "Invalid admin credentials"}
	}

	admin := models.User{
		UID:   models.AdminUID,
		Name:  models.AdminName,
		Email: "admin@neonmessenger.com",
	}
	return m.open(admin, true)
}

// SignOut writes presence offline before the session is dropped, so a
// failed presence write still leaves the token revoked afterwards.
func (m *Manager) SignOut(token string) {
	sess, err := m.sessions.Get(token)
	if err != nil {
		return
	}

	if !sess.Admin {
		if err := m.setPresence(sess.User.UID, false); err != nil {
			m.log.Warn("presence update failed on sign-out", "uid", sess.User.UID, "error", err)
		}
	}

	_ = m.sessions.Del(token)
}

// Get resolves a live token. Blocked-while-signed-in is not rechecked
// here; moderation closes live sessions explicitly.
func (m *Manager) Get(token string) (*Session, error) {
	return m.sessions.Get(token)
}

// Revoke drops every live session belonging to uid. Used when an
// account is blocked or deleted.
func (m *Manager) Revoke(uid string) {
	snap := m.sessions.Snapshot()
	for token, sess := range snap {
		if sess.User.UID == uid {
			_ = m.sessions.Del(token)
		}
	}
}

func (m *Manager) open(user models.User, admin bool) (*Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, &models.BackendError{Op: "generate token", Err: err}
	}

	sess := &Session{Token: token, User: user, Admin: admin}
	m.sessions.Set(token, sess)
	return sess, nil
}

func (m *Manager) setPresence(uid string, online bool) error {
	err := m.store.Update("users/"+uid, map[string]any{
		"online":   online,
		"lastSeen": m.now().UnixMilli(),
	})
	if err != nil {
		return &models.BackendError{Op: "update presence", Err: err}
	}
	return nil
}

func (m *Manager) registrationsAllowed() bool {
	var allowed bool
	err := m.store.Get("settings/allowRegistrations", &allowed)
	if errors.Is(err, models.ErrNotFound) {
		return models.DefaultSettings().AllowRegistrations
	}
	if err != nil {
		// Fail open: a broken settings record must not lock everyone out.
		m.log.Warn("failed to read registration settings", "error", err)
		return true
	}
	return allowed
}

func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
