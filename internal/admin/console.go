// Package admin is the moderation console: dashboard aggregates, user
// moderation across both stores, support ticket handling and the
// operator-tunable settings.
package admin

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"neonchat/internal/mirror"
	"neonchat/internal/models"
	"neonchat/internal/rooms"
	"neonchat/internal/rtdb"
	"neonchat/internal/session"
)

const activityFeedSize = 10

// Console exposes the moderation operations. Every method assumes the
// caller already holds an admin session; the transport layer gates
// access before dispatching here.
type Console struct {
	store    *rtdb.Store
	mirror   *mirror.Store
	sessions *session.Manager
	verifier *session.Verifier
	rooms    *rooms.Registry
	log      *slog.Logger
	now      func() time.Time

	// operator is the synthetic session used for registry calls that
	// demand admin rights.
	operator *session.Session
}

func NewConsole(store *rtdb.Store, mir *mirror.Store, sessions *session.Manager, verifier *session.Verifier, reg *rooms.Registry) *Console {
	return &Console{
		store:    store,
		mirror:   mir,
		sessions: sessions,
		verifier: verifier,
		rooms:    reg,
		log:      slog.Default(),
		now:      time.Now,
		operator: &session.Session{
			User:  models.User{UID: models.AdminUID, Name: models.AdminName},
			Admin: true,
		},
	}
}

// Stats computes the dashboard aggregates. "Messages today" walks every
// direct conversation's log and compares against local midnight; there
// is no incremental counter to drift out of sync.
func (c *Console) Stats() (models.DashboardStats, error) {
	var stats models.DashboardStats

	users, err := c.listUsers()
	if err != nil {
		return stats, err
	}
	stats.TotalUsers = len(users)
	for _, u := range users {
		if u.Online {
			stats.OnlineUsers++
		}
	}

	midnight := localMidnight(c.now()).UnixMilli()
	snap, err := c.store.List("chats")
	if err != nil {
		return stats, &models.BackendError{Op: "scan conversations", Err: err}
	}
	for _, entry := range snap {
		if !strings.Contains(entry.Path, "/messages/") {
			continue
		}
		var m models.Message
		if err := entry.Decode(&m); err != nil {
			continue
		}
		if m.Timestamp >= midnight {
			stats.MessagesToday++
		}
	}

	roomSnap, err := c.store.List("privateChats")
	if err != nil {
		return stats, &models.BackendError{Op: "scan rooms", Err: err}
	}
	for _, entry := range roomSnap {
		if strings.Count(entry.Path, "/") == 1 {
			stats.PrivateRooms++
		}
	}

	return stats, nil
}

// RecentActivity merges registrations and ticket openings, newest
// first, truncated to the feed size.
func (c *Console) RecentActivity() ([]models.Activity, error) {
	users, err := c.listUsers()
	if err != nil {
		return nil, err
	}

	feed := make([]models.Activity, 0, len(users))
	for _, u := range users {
		feed = append(feed, models.Activity{
			Kind:      models.ActivityRegistration,
			Text:      u.Name + " registered",
			Timestamp: u.CreatedAt,
		})
	}

	tickets, err := c.ListTickets()
	if err != nil {
		return nil, err
	}
	for _, ticket := range tickets {
		feed = append(feed, models.Activity{
			Kind:      models.ActivitySupport,
			Text:      ticket.UserName + " opened a support ticket",
			Timestamp: ticket.CreatedAt,
		})
	}

	sort.Slice(feed, func(i, j int) bool {
		return feed[i].Timestamp > feed[j].Timestamp
	})
	if len(feed) > activityFeedSize {
		feed = feed[:activityFeedSize]
	}
	return feed, nil
}

// ListUsers returns every account, newest registration first.
func (c *Console) ListUsers() ([]models.User, error) {
	users, err := c.listUsers()
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt > users[j].CreatedAt
	})
	return users, nil
}

// SetBlocked flips the moderation flag in both stores. Blocking also
// closes every live session of the account; the user finds out at the
// next request, not mid-render.
func (c *Console) SetBlocked(uid string, blocked bool) error {
	if err := c.store.Get("users/"+uid, &models.User{}); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.NotFoundError{Kind: "user", ID: uid}
		}
		return &models.BackendError{Op: "load user", Err: err}
	}

	if err := c.store.Update("users/"+uid, map[string]any{"blocked": blocked}); err != nil {
		return &models.BackendError{Op: "update block flag", Err: err}
	}

	if err := c.mirror.SetUserBlocked(uid, blocked); err != nil {
		c.log.Warn("mirror write failed", "table", "users", "uid", uid, "error", err)
	}

	if blocked {
		c.sessions.Revoke(uid)
	}
	return nil
}

// DeleteUser removes the account from both stores and drops its
// credentials and live sessions. Irreversible; the confirmation step
// lives in the presentation layer.
func (c *Console) DeleteUser(uid string) error {
	var user models.User
	if err := c.store.Get("users/"+uid, &user); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.NotFoundError{Kind: "user", ID: uid}
		}
		return &models.BackendError{Op: "load user", Err: err}
	}

	if err := c.verifier.Delete(user.Email); err != nil {
		c.log.Warn("credential delete failed", "uid", uid, "error", err)
	}

	if err := c.store.Delete("users/" + uid); err != nil {
		return &models.BackendError{Op: "delete user", Err: err}
	}

	if err := c.mirror.DeleteUser(uid); err != nil {
		c.log.Warn("mirror delete failed", "table", "users", "uid", uid, "error", err)
	}

	c.sessions.Revoke(uid)
	return nil
}

// TicketRecord pairs a ticket with the uid it is keyed by.
type TicketRecord struct {
	UID string `json:"uid"`
	models.Ticket
}

// ListTickets returns every support ticket, open first, then newest.
func (c *Console) ListTickets() ([]TicketRecord, error) {
	snap, err := c.store.List("support")
	if err != nil {
		return nil, &models.BackendError{Op: "list tickets", Err: err}
	}

	tickets := make([]TicketRecord, 0, len(snap))
	for _, entry := range snap {
		if strings.Count(entry.Path, "/") != 1 {
			continue
		}
		var t models.Ticket
		if err := entry.Decode(&t); err != nil {
			c.log.Warn("corrupt ticket record", "path", entry.Path, "error", err)
			continue
		}
		tickets = append(tickets, TicketRecord{UID: entry.Key(), Ticket: t})
	}

	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].Status != tickets[j].Status {
			return tickets[i].Status == models.TicketStatusOpen
		}
		return tickets[i].CreatedAt > tickets[j].CreatedAt
	})
	return tickets, nil
}

// Reply appends an operator-authored message to the user's support
// conversation and reopens the ticket if it was closed.
func (c *Console) Reply(uid, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return &models.ValidationError{Field: "text", Reason: "required"}
	}

	if err := c.store.Get("support/"+uid, &models.Ticket{}); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.NotFoundError{Kind: "ticket", ID: uid}
		}
		return &models.BackendError{Op: "load ticket", Err: err}
	}

	msg, err := models.NewMessage(text, models.AdminUID, models.AdminName)
	if err != nil {
		return err
	}
	if _, err := c.store.Push("support/"+uid+"/messages", &msg); err != nil {
		return &models.BackendError{Op: "send reply", Err: err}
	}

	err = c.store.Update("support/"+uid, map[string]any{"status": string(models.TicketStatusOpen)})
	if err != nil {
		return &models.BackendError{Op: "reopen ticket", Err: err}
	}

	if err := c.mirror.SaveMessage(uid, msg); err != nil {
		c.log.Warn("mirror write failed", "table", "messages", "error", err)
	}
	return nil
}

// ToggleTicket flips the ticket between open and closed and returns the
// new status.
func (c *Console) ToggleTicket(uid string) (models.TicketStatus, error) {
	var ticket models.Ticket
	if err := c.store.Get("support/"+uid, &ticket); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", &models.NotFoundError{Kind: "ticket", ID: uid}
		}
		return "", &models.BackendError{Op: "load ticket", Err: err}
	}

	next := models.TicketStatusOpen
	if ticket.Status == models.TicketStatusOpen {
		next = models.TicketStatusClosed
	}

	err := c.store.Update("support/"+uid, map[string]any{"status": string(next)})
	if err != nil {
		return "", &models.BackendError{Op: "toggle ticket", Err: err}
	}
	return next, nil
}

// ListRooms returns every private room with membership.
func (c *Console) ListRooms() ([]models.Room, error) {
	return c.rooms.List()
}

// DeleteRoom removes a room and its message log.
func (c *Console) DeleteRoom(code string) error {
	return c.rooms.Delete(c.operator, code)
}

// Settings reads the current switches, falling back to defaults for
// anything never written.
func (c *Console) Settings() (models.Settings, error) {
	settings := models.DefaultSettings()

	if err := readSetting(c.store, "settings/maintenance", &settings.Maintenance); err != nil {
		return settings, err
	}
	if err := readSetting(c.store, "settings/allowRegistrations", &settings.AllowRegistrations); err != nil {
		return settings, err
	}
	if err := readSetting(c.store, "settings/autoDeleteDays", &settings.AutoDeleteDays); err != nil {
		return settings, err
	}
	return settings, nil
}

func (c *Console) SetMaintenance(on bool) error {
	return c.putSetting("settings/maintenance", on)
}

func (c *Console) SetAllowRegistrations(on bool) error {
	return c.putSetting("settings/allowRegistrations", on)
}

func (c *Console) SetAutoDeleteDays(days int) error {
	if days < 0 {
		return &models.ValidationError{Field: "autoDeleteDays", Reason: "must not be negative"}
	}
	return c.putSetting("settings/autoDeleteDays", days)
}

func (c *Console) putSetting(path string, v any) error {
	if err := c.store.Put(path, v); err != nil {
		return &models.BackendError{Op: "save setting", Err: err}
	}
	return nil
}

func readSetting[T any](store *rtdb.Store, path string, out *T) error {
	var v T
	err := store.Get(path, &v)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return &models.BackendError{Op: "read setting", Err: err}
	}
	*out = v
	return nil
}

func (c *Console) listUsers() ([]models.User, error) {
	snap, err := c.store.List("users")
	if err != nil {
		return nil, &models.BackendError{Op: "list users", Err: err}
	}

	users := make([]models.User, 0, len(snap))
	for _, entry := range snap {
		if strings.Count(entry.Path, "/") != 1 {
			continue
		}
		var u models.User
		if err := entry.Decode(&u); err != nil {
			c.log.Warn("corrupt user record", "path", entry.Path, "error", err)
			continue
		}
		if u.UID == "" {
			u.UID = entry.Key()
		}
		users = append(users, u)
	}
	return users, nil
}

func localMidnight(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
