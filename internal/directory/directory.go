// Package directory streams the sidebar views: every other visible
// user and the private chats the principal belongs to. Both views are
// recomputed from full snapshots, never patched incrementally.
package directory

import (
	"log/slog"
	"sort"
	"strings"

	"neonchat/internal/models"
	"neonchat/internal/rooms"
	"neonchat/internal/rtdb"
	"neonchat/internal/session"
)

type Directory struct {
	self string
	log  *slog.Logger

	usersSub *rtdb.Subscription
	roomsSub *rtdb.Subscription

	users chan []models.User
	rooms chan []models.Room
}

// Open subscribes both sidebar streams for the session's user. The
// initial state is delivered immediately on each channel.
func Open(store *rtdb.Store, sess *session.Session) (*Directory, error) {
	d := &Directory{
		self:  sess.User.UID,
		log:   slog.Default(),
		users: make(chan []models.User, 16),
		rooms: make(chan []models.Room, 16),
	}

	usersSub, err := store.Subscribe("users", 0)
	if err != nil {
		return nil, &models.BackendError{Op: "subscribe users", Err: err}
	}
	roomsSub, err := store.Subscribe("privateChats", 0)
	if err != nil {
		usersSub.Close()
		return nil, &models.BackendError{Op: "subscribe rooms", Err: err}
	}

	d.usersSub = usersSub
	d.roomsSub = roomsSub
	go d.forwardUsers()
	go d.forwardRooms()
	return d, nil
}

// Users delivers the contact list after every change: everyone except
// the principal and blocked accounts, sorted by name. A user blocked
// mid-session disappears on the next snapshot.
func (d *Directory) Users() <-chan []models.User {
	return d.users
}

// Rooms delivers the private chats the principal is a member of.
func (d *Directory) Rooms() <-chan []models.Room {
	return d.rooms
}

// Close stops both streams and closes the output channels.
func (d *Directory) Close() {
	d.usersSub.Close()
	d.roomsSub.Close()
}

// ListVisible reads the contact list once, with the same filtering the
// live stream applies.
func ListVisible(store *rtdb.Store, selfUID string) ([]models.User, error) {
	snap, err := store.List("users")
	if err != nil {
		return nil, &models.BackendError{Op: "list users", Err: err}
	}
	return visibleUsers(snap, selfUID, slog.Default()), nil
}

func visibleUsers(snap rtdb.Snapshot, selfUID string, log *slog.Logger) []models.User {
	list := make([]models.User, 0, len(snap))
	for _, entry := range snap {
		if strings.Contains(strings.TrimPrefix(entry.Path, "users/"), "/") {
			continue
		}
		var u models.User
		if err := entry.Decode(&u); err != nil {
			log.Warn("corrupt user record", "path", entry.Path, "error", err)
			continue
		}
		if u.UID == "" {
			u.UID = entry.Key()
		}
		if u.UID == selfUID || u.Blocked {
			continue
		}
		list = append(list, u)
	}
	sort.Slice(list, func(i, j int) bool {
		return strings.ToLower(list[i].Name) < strings.ToLower(list[j].Name)
	})
	return list
}

func (d *Directory) forwardUsers() {
	defer close(d.users)
	for snap := range d.usersSub.Updates() {
		emit(d.users, visibleUsers(snap, d.self, d.log))
	}
}

func (d *Directory) forwardRooms() {
	defer close(d.rooms)
	for snap := range d.roomsSub.Updates() {
		all := rooms.AssembleRooms(snap)
		mine := make([]models.Room, 0, len(all))
		for _, room := range all {
			if room.HasMember(d.self) {
				mine = append(mine, room)
			}
		}
		emit(d.rooms, mine)
	}
}

// emit coalesces when the consumer lags, keeping only the most recent
// view pending.
func emit[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
