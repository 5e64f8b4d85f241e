// Package rooms manages private chats joined by code: generation of
// unique join codes, membership bookkeeping and capacity enforcement.
package rooms

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"neonchat/internal/mirror"
	"neonchat/internal/models"
	"neonchat/internal/rtdb"
	"neonchat/internal/session"
)

// codeAlphabet is A-Z and 2-9 minus the easily-confused glyphs
// (I, O, 0, 1).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	CodeLength      = 8
	DefaultCapacity = 15

	// maxCodeAttempts bounds the retry-on-collision loop in Create.
	// With 32^8 codes a second attempt is already vanishingly rare.
	maxCodeAttempts = 5
)

type Registry struct {
	store  *rtdb.Store
	mirror *mirror.Store
	log    *slog.Logger

	// mu serializes create/join so a room can never be pushed past
	// capacity by two concurrent joins.
	mu sync.Mutex

	genCode func() string
	now     func() time.Time
}

func NewRegistry(store *rtdb.Store, mir *mirror.Store) *Registry {
	return &Registry{
		store:   store,
		mirror:  mir,
		log:     slog.Default(),
		genCode: generateCode,
		now:     time.Now,
	}
}

// JoinResult reports a join outcome. AlreadyMember is the idempotent
// case: not an error, the caller shows an informational notice.
type JoinResult struct {
	Room          models.Room
	AlreadyMember bool
}

// Create allocates a fresh room with the caller as sole member. Codes
// are checked against existing rooms and regenerated on collision; a
// collision must never silently overwrite someone else's room.
func (r *Registry) Create(sess *session.Session) (models.Room, error) {
	if sess == nil || sess.User.UID == "" {
		return models.Room{}, &models.AuthError{Message: "Please sign in to create a private chat"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var code string
	for i := 0; i < maxCodeAttempts; i++ {
		candidate := r.genCode()
		err := r.store.Get("privateChats/"+candidate, &models.Room{})
		if errors.Is(err, models.ErrNotFound) {
			code = candidate
			break
		}
		if err != nil {
			return models.Room{}, &models.BackendError{Op: "check room code", Err: err}
		}
	}
	if code == "" {
		return models.Room{}, &models.BackendError{Op: "allocate room code", Err: errors.New("no unique code after retries")}
	}

	now := r.now().UnixMilli()
	room := models.Room{
		Code:       code,
		CreatedBy:  sess.User.UID,
		CreatedAt:  now,
		MaxMembers: DefaultCapacity,
	}

	if err := r.store.Put("privateChats/"+code, room); err != nil {
		return models.Room{}, &models.BackendError{Op: "create room", Err: err}
	}

	member := models.RoomMember{Name: sess.User.Name, JoinedAt: now}
	if err := r.store.Put(memberPath(code, sess.User.UID), member); err != nil {
		return models.Room{}, &models.BackendError{Op: "add creator", Err: err}
	}

	if err := r.mirror.SaveRoom(room); err != nil {
		r.log.Warn("mirror write failed", "table", "private_chats", "code", code, "error", err)
	}

	room.Members = map[string]models.RoomMember{sess.User.UID: member}
	return room, nil
}

// Join adds the caller to the room. Fails with NotFoundError for an
// unknown code and CapacityError for a full room; joining a room the
// caller already belongs to changes nothing.
func (r *Registry) Join(sess *session.Session, code string) (JoinResult, error) {
	if sess == nil || sess.User.UID == "" {
		return JoinResult{}, &models.AuthError{Message: "Please sign in to join private chats"}
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != CodeLength {
		return JoinResult{}, &models.ValidationError{Field: "code", Reason: "must be 8 characters"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.Load(code)
	if err != nil {
		return JoinResult{}, err
	}

	if room.HasMember(sess.User.UID) {
		return JoinResult{Room: room, AlreadyMember: true}, nil
	}

	if room.MemberCount() >= room.MaxMembers {
		return JoinResult{}, &models.CapacityError{Code: code, Capacity: room.MaxMembers}
	}

	member := models.RoomMember{Name: sess.User.Name, JoinedAt: r.now().UnixMilli()}
	if err := r.store.Put(memberPath(code, sess.User.UID), member); err != nil {
		return JoinResult{}, &models.BackendError{Op: "join room", Err: err}
	}

	room.Members[sess.User.UID] = member
	return JoinResult{Room: room}, nil
}

// Load reads one room with its full membership.
func (r *Registry) Load(code string) (models.Room, error) {
	var room models.Room
	err := r.store.Get("privateChats/"+code, &room)
	if errors.Is(err, models.ErrNotFound) {
		return models.Room{}, &models.NotFoundError{Kind: "room", ID: code}
	}
	if err != nil {
		return models.Room{}, &models.BackendError{Op: "load room", Err: err}
	}

	room.Members = make(map[string]models.RoomMember)
	snap, err := r.store.List("privateChats/" + code + "/members")
	if err != nil {
		return models.Room{}, &models.BackendError{Op: "load members", Err: err}
	}
	for _, entry := range snap {
		var m models.RoomMember
		if err := entry.Decode(&m); err != nil {
			continue
		}
		room.Members[entry.Key()] = m
	}

	return room, nil
}

// List returns every room with membership, for the moderation console.
func (r *Registry) List() ([]models.Room, error) {
	snap, err := r.store.List("privateChats")
	if err != nil {
		return nil, &models.BackendError{Op: "list rooms", Err: err}
	}
	return AssembleRooms(snap), nil
}

// Delete removes a room and its entire message log. Admin only.
func (r *Registry) Delete(sess *session.Session, code string) error {
	if sess == nil || !sess.Admin {
		return &models.AuthError{Message: "Admin access required"}
	}

	if err := r.store.Get("privateChats/"+code, &models.Room{}); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.NotFoundError{Kind: "room", ID: code}
		}
		return &models.BackendError{Op: "load room", Err: err}
	}

	if err := r.store.Delete("privateChats/" + code); err != nil {
		return &models.BackendError{Op: "delete room", Err: err}
	}

	if err := r.mirror.DeleteRoom(code); err != nil {
		r.log.Warn("mirror delete failed", "table", "private_chats", "code", code, "error", err)
	}

	return nil
}

// AssembleRooms folds a privateChats snapshot into room records with
// membership attached. Message entries are skipped.
func AssembleRooms(snap rtdb.Snapshot) []models.Room {
	byCode := make(map[string]*models.Room)

	for _, entry := range snap {
		parts := strings.Split(entry.Path, "/")
		switch {
		case len(parts) == 2:
			var room models.Room
			if err := entry.Decode(&room); err != nil {
				continue
			}
			if existing, ok := byCode[room.Code]; ok {
				room.Members = existing.Members
			} else {
				room.Members = make(map[string]models.RoomMember)
			}
			byCode[room.Code] = &room

		case len(parts) == 4 && parts[2] == "members":
			var m models.RoomMember
			if err := entry.Decode(&m); err != nil {
				continue
			}
			code := parts[1]
			room, ok := byCode[code]
			if !ok {
				room = &models.Room{Code: code, Members: make(map[string]models.RoomMember)}
				byCode[code] = room
			}
			room.Members[parts[3]] = m
		}
	}

	result := make([]models.Room, 0, len(byCode))
	for _, room := range byCode {
		result = append(result, *room)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Code < result[j].Code
	})
	return result
}

func memberPath(code, uid string) string {
	return "privateChats/" + code + "/members/" + uid
}

func generateCode() string {
	b := make([]byte, CodeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(b)
}
