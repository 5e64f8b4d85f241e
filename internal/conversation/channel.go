// Package conversation carries the active conversation: resolving a
// selection to a store path, streaming its last messages and sending
// new ones. One channel per client; exactly one live subscription per
// channel.
package conversation

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"neonchat/internal/content"
	"neonchat/internal/mirror"
	"neonchat/internal/models"
	"neonchat/internal/rtdb"
	"neonchat/internal/session"
)

// MessageWindow is the live view size: the newest messages by store
// timestamp.
const MessageWindow = 50

const typingExpiry = 3 * time.Second

type Channel struct {
	store  *rtdb.Store
	mirror *mirror.Store
	sess   *session.Session
	log    *slog.Logger

	mu     sync.Mutex
	sub    *rtdb.Subscription
	kind   Kind
	target string
	path   string
	gen    int

	typingTimer *time.Timer
	typingWait  time.Duration

	out chan []models.Message
}

func NewChannel(store *rtdb.Store, mir *mirror.Store, sess *session.Session) *Channel {
	return &Channel{
		store:      store,
		mirror:     mir,
		sess:       sess,
		log:        slog.Default(),
		typingWait: typingExpiry,
		out:        make(chan []models.Message, 16),
	}
}

// Messages delivers the full current window after every change to the
// open conversation. Consumers replace their view wholesale.
func (c *Channel) Messages() <-chan []models.Message {
	return c.out
}

// Open switches the channel to a new target. The previous subscription
// is torn down first; the store does not replace streams implicitly,
// and leaving both live would render the old conversation into the new
// view.
func (c *Channel) Open(kind Kind, targetID string) error {
	path, err := Resolve(kind, targetID, c.sess.User.UID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.teardownLocked()

	sub, err := c.store.Subscribe(path, MessageWindow)
	if err != nil {
		c.mu.Unlock()
		return &models.BackendError{Op: "subscribe", Err: err}
	}

	c.sub = sub
	c.kind = kind
	c.target = targetID
	c.path = path
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.forward(sub, gen)
	return nil
}

// Send appends a message to the open conversation. Empty or
// whitespace-only text and an unselected target are silent no-ops:
// nothing is written to either store. The mirror write is best-effort.
func (c *Channel) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	kind, target, path := c.kind, c.target, c.path
	c.mu.Unlock()
	if path == "" {
		return nil
	}

	msg, err := models.NewMessage(content.Sanitize(text), c.sess.User.UID, c.sess.User.Name)
	if err != nil {
		return err
	}

	if kind == KindSupport {
		if err := c.ensureTicket(); err != nil {
			return err
		}
	}

	if _, err := c.store.Push(path, &msg); err != nil {
		return &models.BackendError{Op: "send message", Err: err}
	}

	if kind == KindDirect {
		pair := PairKey(c.sess.User.UID, target)
		err := c.store.Update("chats/"+pair, map[string]any{
			"lastMessage":     msg.Text,
			"lastMessageTime": msg.Timestamp,
			"participants":    map[string]bool{c.sess.User.UID: true, target: true},
		})
		if err != nil {
			return &models.BackendError{Op: "update conversation metadata", Err: err}
		}
	}

	if err := c.mirror.SaveMessage(c.conversationKey(kind, target), msg); err != nil {
		c.log.Warn("mirror write failed", "table", "messages", "error", err)
	}

	return nil
}

// Typing marks the principal as typing in the open direct
// conversation. The flag clears itself after three seconds of silence;
// every keystroke pushes the deadline out.
func (c *Channel) Typing() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.kind != KindDirect || c.target == "" {
		return
	}

	pair := PairKey(c.sess.User.UID, c.target)
	typingPath := "chats/" + pair + "/typing"
	uid := c.sess.User.UID

	if err := c.store.Update(typingPath, map[string]any{uid: true}); err != nil {
		c.log.Warn("typing flag write failed", "error", err)
		return
	}

	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingTimer = time.AfterFunc(c.typingWait, func() {
		if err := c.store.Update(typingPath, map[string]any{uid: false}); err != nil {
			c.log.Warn("typing flag clear failed", "error", err)
		}
	})
}

// Close tears down the active subscription. The channel can be
// reopened afterwards.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	c.gen++
}

func (c *Channel) teardownLocked() {
	if c.sub != nil {
		c.sub.Close()
		c.sub = nil
	}
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.kind = ""
	c.target = ""
	c.path = ""
}

func (c *Channel) forward(sub *rtdb.Subscription, gen int) {
	for snap := range sub.Updates() {
		msgs := make([]models.Message, 0, len(snap))
		for _, entry := range snap {
			var m models.Message
			if err := entry.Decode(&m); err != nil {
				c.log.Warn("corrupt message entry", "path", entry.Path, "error", err)
				continue
			}
			m.ID = entry.Key()
			msgs = append(msgs, m)
		}

		// The user may have switched away while this snapshot was in
		// flight; results for a stale view are dropped, not rendered.
		c.mu.Lock()
		stale := c.gen != gen
		c.mu.Unlock()
		if stale {
			return
		}

		c.emit(msgs)
	}
}

// emit coalesces when the consumer lags: the oldest pending window is
// dropped so the channel always holds the most recent state.
func (c *Channel) emit(msgs []models.Message) {
	for {
		select {
		case c.out <- msgs:
			return
		default:
			select {
			case <-c.out:
			default:
			}
		}
	}
}

// ensureTicket creates the support ticket on first contact and reopens
// it on later messages. CreatedAt is only written once.
func (c *Channel) ensureTicket() error {
	path := "support/" + c.sess.User.UID

	var ticket models.Ticket
	err := c.store.Get(path, &ticket)
	switch {
	case errors.Is(err, models.ErrNotFound):
		ticket = models.Ticket{
			UserName:  c.sess.User.Name,
			UserEmail: c.sess.User.Email,
			Status:    models.TicketStatusOpen,
			CreatedAt: time.Now().UnixMilli(),
		}
		if err := c.store.Put(path, ticket); err != nil {
			return &models.BackendError{Op: "create support ticket", Err: err}
		}
	case err != nil:
		return &models.BackendError{Op: "load support ticket", Err: err}
	case ticket.Status != models.TicketStatusOpen:
		err := c.store.Update(path, map[string]any{"status": string(models.TicketStatusOpen)})
		if err != nil {
			return &models.BackendError{Op: "reopen support ticket", Err: err}
		}
	}

	return nil
}

func (c *Channel) conversationKey(kind Kind, target string) string {
	switch kind {
	case KindDirect:
		return PairKey(c.sess.User.UID, target)
	case KindSupport:
		return c.sess.User.UID
	default:
		return target
	}
}
