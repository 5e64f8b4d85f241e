package session

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"neonchat/internal/models"
	"neonchat/internal/rtdb"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists = errors.New("user already exists")
)

// Credentials is the stored verification record for one account.
type Credentials struct {
	UID          string `msgpack:"uid"`
	Email        string `msgpack:"email"`
	PasswordHash string `msgpack:"passwordHash"`
}

// Verifier checks email/password pairs against stored bcrypt hashes.
// It fills the role of the external credential-verification service:
// callers get back a principal id, never the stored record.
type Verifier struct {
	store *rtdb.Store
	cache *geche.Locker[string, *Credentials]
}

func NewVerifier(store *rtdb.Store) (*Verifier, error) {
	v := &Verifier{
		store: store,
		cache: geche.NewLocker[string, *Credentials](geche.NewMapCache[string, *Credentials]()),
	}

	snap, err := store.List("credentials")
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	tx := v.cache.Lock()
	defer tx.Unlock()
	for _, entry := range snap {
		var c Credentials
		if err := entry.Decode(&c); err != nil {
			return nil, fmt.Errorf("corrupt credential record at %s: %w", entry.Path, err)
		}
		tx.Set(credKey(c.Email), &c)
	}

	return v, nil
}

// Create registers a new account and returns its uid.
func (v *Verifier) Create(email, password string) (string, error) {
	key := credKey(email)

	tx := v.cache.Lock()
	defer tx.Unlock()

	if _, err := tx.Get(key); err == nil {
		return "", ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	creds := &Credentials{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
	}

	if err := v.store.Put(credPath(email), creds); err != nil {
		return "", err
	}
	tx.Set(key, creds)

	return creds.UID, nil
}

// Verify returns the principal id for a correct email/password pair.
func (v *Verifier) Verify(email, password string) (string, error) {
	tx := v.cache.Lock()
	creds, err := tx.Get(credKey(email))
	tx.Unlock()
	if err != nil {
		return "", &models.AuthError{Message: "User not found"}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return "", &models.AuthError{Message: "Incorrect password"}
	}

	return creds.UID, nil
}

// Delete removes the account's credentials. Used by admin user deletion.
func (v *Verifier) Delete(email string) error {
	key := credKey(email)

	tx := v.cache.Lock()
	defer tx.Unlock()

	if _, err := tx.Get(key); err != nil {
		return nil // already gone
	}

	if err := v.store.Delete(credPath(email)); err != nil {
		return err
	}
	_ = tx.Del(key)
	return nil
}

func credKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func credPath(email string) string {
	return "credentials/" + url.PathEscape(credKey(email))
}
