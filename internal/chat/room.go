package chat

import (
	"errors"
	"sync"

	"github.com/ledzpl/fchat/internal/frame"
)

// MaxRecent is the default number of messages replayed to new members.
const MaxRecent = 100

// ErrRoomClosed is returned by Join once the room has been closed.
var ErrRoomClosed = errors.New("chat: room closed")

// Participant is anything the room can hand a message to. Deliver is called
// with the room lock held and must not block.
type Participant interface {
	ID() string
	Deliver(msg frame.Message)
}

// Option configures a Room.
type Option func(*Room)

// WithBacklogSize overrides how many recent messages are kept for replay.
func WithBacklogSize(n int) Option {
	return func(r *Room) {
		if n >= 0 {
			r.recent = newBacklog(n)
		}
	}
}

// WithMetrics records room activity on m.
func WithMetrics(m *Metrics) Option {
	return func(r *Room) {
		r.metrics = m
	}
}

// Room is the broadcast domain: its members and the recent-message backlog.
// Every operation runs under a single lock so joins, leaves and deliveries
// are totally ordered.
type Room struct {
	mu      sync.Mutex
	members map[string]Participant
	recent  *backlog
	closed  bool

	metrics *Metrics
}

// NewRoom constructs an empty chat room.
func NewRoom(opts ...Option) *Room {
	r := &Room{
		members: make(map[string]Participant),
		recent:  newBacklog(MaxRecent),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Join adds p to the room and replays the backlog to it, oldest first. No
// delivery can slip between the replay and p becoming a member.
func (r *Room) Join(p Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomClosed
	}

	r.members[p.ID()] = p
	r.recent.each(p.Deliver)
	r.metrics.setMembers(len(r.members))
	return nil
}

// Leave removes the member with the given id. Removing an absent member is a
// no-op; the result reports whether anything was removed.
func (r *Room) Leave(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	r.metrics.setMembers(len(r.members))
	return true
}

// Deliver records msg in the backlog and hands it to every member. Messages
// delivered after Close are dropped.
func (r *Room) Deliver(msg frame.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.recent.push(msg)
	for _, p := range r.members {
		p.Deliver(msg)
	}

	r.metrics.incDelivered()
	r.metrics.setBacklog(r.recent.len())
}

// Backlog returns a copy of the recent messages, oldest first.
func (r *Room) Backlog() []frame.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recent.snapshot()
}

// Len returns the number of members.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Close stops the room from admitting members or accepting messages and
// returns the members it had.
func (r *Room) Close() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	members := make([]Participant, 0, len(r.members))
	for id, p := range r.members {
		members = append(members, p)
		delete(r.members, id)
	}
	r.metrics.setMembers(0)
	return members
}
