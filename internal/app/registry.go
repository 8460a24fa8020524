package app

import (
	"sync"

	"github.com/dkeye/RandomVoice/internal/core"
	"github.com/dkeye/RandomVoice/internal/domain"
	"github.com/rs/zerolog/log"
)

// User is a registered peer. Conn is referenced, never owned: the transport
// adapter closes it. Room membership fields are guarded by RoomManager.mu.
type User struct {
	ID   domain.UserID
	Conn core.SignalConnection

	room    domain.RoomID
	evicted bool
}

// Registry maps identities to open connections.
type Registry struct {
	mu    sync.RWMutex
	users map[domain.UserID]*User
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[domain.UserID]*User),
	}
}

// Register binds id to conn. An existing entry is overwritten (last writer
// wins) and returned as displaced so the caller can clean up its room.
func (r *Registry) Register(id domain.UserID, conn core.SignalConnection) (u *User, displaced *User) {
	u = &User{ID: id, Conn: conn}
	r.mu.Lock()
	displaced = r.users[id]
	r.users[id] = u
	r.mu.Unlock()

	ev := log.Info().Str("module", "app.registry").Str("user", string(id)).Str("conn", string(conn.ID()))
	if displaced != nil {
		ev = ev.Str("displaced_conn", string(displaced.Conn.ID()))
	}
	ev.Msg("registered user")
	return u, displaced
}

func (r *Registry) Lookup(id domain.UserID) (*User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	return u, ok
}

// Remove deletes id whatever it is bound to.
func (r *Registry) Remove(id domain.UserID) (*User, bool) {
	r.mu.Lock()
	u, ok := r.users[id]
	if ok {
		delete(r.users, id)
	}
	r.mu.Unlock()
	if ok {
		log.Info().Str("module", "app.registry").Str("user", string(id)).Msg("removed user")
	}
	return u, ok
}

// RemoveUser deletes u only while it is still the registered entry for its
// id. Exactly one caller observes true for a given *User.
func (r *Registry) RemoveUser(u *User) bool {
	r.mu.Lock()
	ok := r.users[u.ID] == u
	if ok {
		delete(r.users, u.ID)
	}
	r.mu.Unlock()
	if ok {
		log.Info().Str("module", "app.registry").Str("user", string(u.ID)).Msg("removed user")
	}
	return ok
}

// Filter returns a snapshot of users matching pred. pred runs under the read
// lock and must not call back into the registry.
func (r *Registry) Filter(pred func(*User) bool) []*User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*User, 0)
	for _, u := range r.users {
		if pred(u) {
			out = append(out, u)
		}
	}
	return out
}

// BoundTo lists every identity registered through conn.
func (r *Registry) BoundTo(conn core.SignalConnection) []*User {
	return r.Filter(func(u *User) bool { return u.Conn == conn })
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
