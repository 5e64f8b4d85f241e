package rtdb

import (
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Entry is one stored record inside a snapshot.
type Entry struct {
	Path string
	data []byte
}

// Key returns the last path segment.
func (e Entry) Key() string {
	if i := strings.LastIndexByte(e.Path, '/'); i >= 0 {
		return e.Path[i+1:]
	}
	return e.Path
}

func (e Entry) Decode(v any) error {
	return msgpack.Unmarshal(e.data, v)
}

// Snapshot is the complete current state below a subscribed prefix.
// Subscriptions are level-triggered: every emission carries the full
// snapshot and the consumer replaces its derived view wholesale.
type Snapshot []Entry

// Subscription is a long-lived push stream for one prefix. Exactly one
// handle per logical stream; the consumer must Close the old handle
// before subscribing to a new path, the store never does it implicitly.
type Subscription struct {
	id     uint64
	prefix string
	limit  int
	ch     chan Snapshot
	store  *Store
}

// Subscribe registers a push stream for prefix and synchronously emits
// the initial snapshot. If limit > 0 only the last limit entries (in
// key order) are delivered.
func (s *Store) Subscribe(prefix string, limit int) (*Subscription, error) {
	if err := checkPath(prefix); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.nextID++
	sub := &Subscription{
		id:     s.nextID,
		prefix: prefix,
		limit:  limit,
		ch:     make(chan Snapshot, 16),
		store:  s,
	}
	s.subs[sub.id] = sub
	s.mu.Unlock()

	s.publish(sub)
	return sub, nil
}

// Updates delivers snapshots. The channel is closed by Close (or by
// closing the store).
func (sub *Subscription) Updates() <-chan Snapshot {
	return sub.ch
}

// Close detaches the subscription. Safe to call more than once.
func (sub *Subscription) Close() {
	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()
	if _, ok := sub.store.subs[sub.id]; !ok {
		return
	}
	delete(sub.store.subs, sub.id)
	close(sub.ch)
}

func (s *Store) notify(path string) {
	s.mu.Lock()
	var hit []*Subscription
	for _, sub := range s.subs {
		if covers(sub.prefix, path) || covers(path, sub.prefix) {
			hit = append(hit, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range hit {
		s.publish(sub)
	}
}

func (s *Store) publish(sub *Subscription) {
	// Serialized so snapshots reach each subscriber in write order;
	// two concurrent writers must not deliver the older list last.
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	snap, err := s.List(sub.prefix)
	if err != nil {
		return
	}
	if sub.limit > 0 && len(snap) > sub.limit {
		snap = snap[len(snap)-sub.limit:]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.id]; !ok {
		return
	}
	// Coalesce: a slow consumer sees fewer snapshots, never stale ones.
	for {
		select {
		case sub.ch <- snap:
			return
		default:
			select {
			case <-sub.ch:
			default:
			}
		}
	}
}

func covers(prefix, path string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
