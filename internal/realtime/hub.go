package realtime

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/setlist-vote/internal/queue"
)

// LeaveFunc is called when the last local connection of a user on a show
// closes.
type LeaveFunc func(showID uint64, userID string)

// Hub maintains the websocket clients of this instance grouped by show and
// delivers events to them.  Registration and delivery are serialised by
// the Run loop.
//
// Vote deltas are published from independent goroutines and may reach the
// hub out of order.  The hub remembers the highest tally delivered per
// setlist song and drops any delta at or below it, so a client never sees
// a song's count go backwards.
type Hub struct {
	rooms      map[uint64]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan queue.Envelope
	onLeave    LeaveFunc
	log        logrus.FieldLogger
	done       chan struct{}

	// tallies[showID][setlistSongID] is the highest vote count delivered.
	tallies map[uint64]map[uint64]uint32
}

// NewHub creates a Hub.  onLeave may be nil.
func NewHub(log logrus.FieldLogger, onLeave LeaveFunc) *Hub {
	return &Hub{
		rooms:      make(map[uint64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan queue.Envelope, 256),
		onLeave:    onLeave,
		log:        log,
		tallies:    make(map[uint64]map[uint64]uint32),
		done:       make(chan struct{}),
	}
}

// SetLeaveFunc replaces the last-leave callback.  It must be called before
// Run.
func (h *Hub) SetLeaveFunc(f LeaveFunc) { h.onLeave = f }

// Run processes registrations and broadcasts until ctx is cancelled, then
// closes every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for showID, clients := range h.rooms {
				for c := range clients {
					close(c.send)
				}
				delete(h.rooms, showID)
			}
			clear(h.tallies)
			return nil

		case c := <-h.register:
			if h.rooms[c.showID] == nil {
				h.rooms[c.showID] = make(map[*Client]struct{})
			}
			h.rooms[c.showID][c] = struct{}{}

		case c := <-h.unregister:
			h.remove(c)

		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

// join and leave hand a client to the Run loop; after Run has returned they
// report false / do nothing.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) remove(c *Client) {
	clients, ok := h.rooms[c.showID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.rooms, c.showID)
		delete(h.tallies, c.showID)
	}

	if c.userID == "" || h.onLeave == nil {
		return
	}
	for other := range clients {
		if other.userID == c.userID {
			return
		}
	}
	go h.onLeave(c.showID, c.userID)
}

func (h *Hub) deliver(env queue.Envelope) {
	clients := h.rooms[env.ShowID]
	if len(clients) == 0 {
		return
	}
	if !h.advance(env) {
		return
	}
	msg, err := json.Marshal(env)
	if err != nil {
		h.log.WithError(err).Warn("marshal realtime event")
		return
	}
	for c := range clients {
		select {
		case c.send <- msg:
		default:
			// Slow consumer: drop the connection, the client resyncs on
			// reconnect.
			h.remove(c)
		}
	}
}

// advance records a vote delta's tally and reports whether it is newer
// than anything delivered for that song.  Other event types always pass.
func (h *Hub) advance(env queue.Envelope) bool {
	if env.Type != queue.EventVoteDelta {
		return true
	}
	var delta queue.VoteDelta
	if err := json.Unmarshal(env.Payload, &delta); err != nil {
		h.log.WithError(err).Warn("malformed vote delta dropped")
		return false
	}
	songs := h.tallies[env.ShowID]
	if songs == nil {
		songs = make(map[uint64]uint32)
		h.tallies[env.ShowID] = songs
	}
	if delta.VoteCount <= songs[delta.SetlistSongID] {
		return false
	}
	songs[delta.SetlistSongID] = delta.VoteCount
	return true
}

// Dispatch queues env for delivery to local clients.  It never blocks; when
// the queue is full the event is dropped.  Its signature matches
// queue.Handler.
func (h *Hub) Dispatch(env queue.Envelope) {
	select {
	case h.broadcast <- env:
	default:
		h.log.WithField("type", env.Type).Warn("realtime hub saturated, event dropped")
	}
}

// Publish delivers env to local clients only.  It lets the Hub stand in for
// the broker publisher on single-instance deployments.
func (h *Hub) Publish(_ context.Context, env queue.Envelope) error {
	h.Dispatch(env)
	return nil
}
