package app

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sync"

	"github.com/dkeye/RandomVoice/internal/core"
	"github.com/dkeye/RandomVoice/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrRoomInvariant = errors.New("room invariant violated")
)

// Room is a capacity-bounded group of users. Participants keep join order.
type Room struct {
	ID           domain.RoomID
	Capacity     int
	participants []*User
}

func (r *Room) hasSpace() bool { return len(r.participants) < r.Capacity }

func (r *Room) info() core.RoomInfo {
	ids := make([]domain.UserID, 0, len(r.participants))
	for _, u := range r.participants {
		ids = append(ids, u.ID)
	}
	return core.RoomInfo{ID: r.ID, Capacity: r.Capacity, Participants: ids}
}

// RoomManager owns all rooms and every User's room membership. One mutex
// scopes matching and leaving, so a capacity check and the join it admits
// are never interleaved with another join or leave.
type RoomManager struct {
	mu       sync.Mutex
	rooms    map[domain.RoomID]*Room
	capacity int
	pick     func(n int) int
}

func NewRoomManager(capacity int) *RoomManager {
	if capacity < 1 {
		capacity = domain.DefaultRoomCapacity
	}
	return &RoomManager{
		rooms:    make(map[domain.RoomID]*Room),
		capacity: capacity,
		pick:     rand.Intn,
	}
}

// CreateRoom registers an empty room. Outside Join the caller must either
// fill it or DestroyRoom it.
func (m *RoomManager) CreateRoom(capacity int) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createRoomLocked(capacity)
}

func (m *RoomManager) DestroyRoom(id domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyRoomLocked(id)
}

// FindAvailableOrCreate picks uniformly among rooms with spare capacity.
func (m *RoomManager) FindAvailableOrCreate() *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findAvailableOrCreateLocked()
}

// Join admits u into a room with spare capacity, leaving its current room
// first. It returns the room and the participants that were already there.
func (m *RoomManager) Join(u *User) (domain.RoomID, []*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.evicted {
		return "", nil, ErrUserNotFound
	}
	if u.room != "" {
		m.leaveLocked(u)
	}

	room := m.findAvailableOrCreateLocked()
	others := slices.Clone(room.participants)
	room.participants = append(room.participants, u)
	u.room = room.ID

	log.Info().
		Str("module", "app.rooms").
		Str("room", string(room.ID)).
		Str("user", string(u.ID)).
		Int("participants", len(room.participants)).
		Int("capacity", room.Capacity).
		Msg("user joined room")
	return room.ID, others, nil
}

// Leave removes u from its room, destroying the room once empty.
func (m *RoomManager) Leave(u *User) (domain.RoomID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(u)
}

// Evict leaves the room and bars u from joining again. Used once u has been
// removed from the Registry so a racing Enter cannot resurrect it.
func (m *RoomManager) Evict(u *User) (domain.RoomID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.evicted = true
	return m.leaveLocked(u)
}

func (m *RoomManager) RoomOf(u *User) (domain.RoomID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return u.room, u.room != ""
}

func (m *RoomManager) Get(id domain.RoomID) (core.RoomInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return core.RoomInfo{}, false
	}
	return room.info(), true
}

func (m *RoomManager) List() []core.RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.RoomInfo, 0, len(m.rooms))
	for _, room := range m.rooms {
		out = append(out, room.info())
	}
	return out
}

func (m *RoomManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Check verifies capacity bounds, that no room is empty, and that every
// participant points back at the room listing it.
func (m *RoomManager) Check() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, room := range m.rooms {
		if n := len(room.participants); n == 0 || n > room.Capacity {
			return fmt.Errorf("%w: room %s has %d/%d participants", ErrRoomInvariant, id, n, room.Capacity)
		}
		seen := make(map[*User]bool, len(room.participants))
		for _, u := range room.participants {
			if seen[u] {
				return fmt.Errorf("%w: user %s listed twice in room %s", ErrRoomInvariant, u.ID, id)
			}
			seen[u] = true
			if u.room != id {
				return fmt.Errorf("%w: user %s listed in room %s but points at %q", ErrRoomInvariant, u.ID, id, u.room)
			}
		}
	}
	return nil
}

func (m *RoomManager) createRoomLocked(capacity int) *Room {
	if capacity < 1 {
		capacity = m.capacity
	}
	room := &Room{ID: domain.NewRoomID(), Capacity: capacity}
	m.rooms[room.ID] = room
	log.Info().Str("module", "app.rooms").Str("room", string(room.ID)).Int("capacity", capacity).Msg("created room")
	return room
}

func (m *RoomManager) destroyRoomLocked(id domain.RoomID) {
	room, ok := m.rooms[id]
	if !ok {
		return
	}
	for _, u := range room.participants {
		u.room = ""
	}
	delete(m.rooms, id)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("destroyed room")
}

func (m *RoomManager) findAvailableOrCreateLocked() *Room {
	open := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		if room.hasSpace() {
			open = append(open, room)
		}
	}
	if len(open) == 0 {
		return m.createRoomLocked(m.capacity)
	}
	return open[m.pick(len(open))]
}

func (m *RoomManager) leaveLocked(u *User) (domain.RoomID, bool) {
	id := u.room
	if id == "" {
		return "", false
	}
	u.room = ""
	room, ok := m.rooms[id]
	if !ok {
		return id, false
	}
	room.participants = slices.DeleteFunc(room.participants, func(p *User) bool { return p == u })
	log.Info().
		Str("module", "app.rooms").
		Str("room", string(id)).
		Str("user", string(u.ID)).
		Int("participants", len(room.participants)).
		Msg("user left room")
	if len(room.participants) == 0 {
		m.destroyRoomLocked(id)
	}
	return id, true
}
