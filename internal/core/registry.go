package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry maps users to their live connections. Each user's entry carries its own
// lock so unrelated users never contend.
type Registry struct {
	users   sync.Map // user id -> *userConns
	handles sync.Map // handle -> *Conn
	buffer  int
	now     func() time.Time
}

type userConns struct {
	mu    sync.Mutex
	conns map[string]*Conn
	// dead marks an entry already removed from the users map.
	dead bool
}

// NewRegistry creates an empty registry whose connections queue up to buffer events.
func NewRegistry(buffer int) *Registry {
	return &Registry{buffer: buffer, now: time.Now}
}

// Register adds a new connection for userID. It never fails. online is true when
// this is the user's first live connection.
func (r *Registry) Register(userID string) (conn *Conn, online bool) {
	c := newConn(uuid.NewString(), userID, r.buffer, r.now())
	for {
		v, _ := r.users.LoadOrStore(userID, &userConns{conns: make(map[string]*Conn)})
		entry := v.(*userConns)

		entry.mu.Lock()
		if entry.dead {
			entry.mu.Unlock()
			continue
		}
		online = len(entry.conns) == 0
		entry.conns[c.Handle] = c
		r.handles.Store(c.Handle, c)
		entry.mu.Unlock()

		return c, online
	}
}

// Unregister removes and closes the connection. Unknown handles are a no-op.
// offline is true when the user has no live connection left.
func (r *Registry) Unregister(handle string) (conn *Conn, offline bool) {
	v, ok := r.handles.LoadAndDelete(handle)
	if !ok {
		return nil, false
	}
	c := v.(*Conn)
	c.close()

	ev, ok := r.users.Load(c.UserID)
	if !ok {
		return c, false
	}
	entry := ev.(*userConns)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	delete(entry.conns, handle)
	if len(entry.conns) == 0 {
		entry.dead = true
		r.users.CompareAndDelete(c.UserID, entry)
		return c, true
	}
	return c, false
}

// Get looks a connection up by handle.
func (r *Registry) Get(handle string) (*Conn, bool) {
	v, ok := r.handles.Load(handle)
	if !ok {
		return nil, false
	}
	return v.(*Conn), true
}

// ConnectionsFor returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsFor(userID string) []*Conn {
	v, ok := r.users.Load(userID)
	if !ok {
		return nil
	}
	entry := v.(*userConns)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	out := make([]*Conn, 0, len(entry.conns))
	for _, c := range entry.conns {
		out = append(out, c)
	}
	return out
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	v, ok := r.users.Load(userID)
	if !ok {
		return false
	}
	entry := v.(*userConns)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return len(entry.conns) > 0
}

// All returns every live connection.
func (r *Registry) All() []*Conn {
	var out []*Conn
	r.handles.Range(func(_, v any) bool {
		out = append(out, v.(*Conn))
		return true
	})
	return out
}

// OnlineUsers lists users with at least one live connection.
func (r *Registry) OnlineUsers() []string {
	var out []string
	r.users.Range(func(k, _ any) bool {
		if userID := k.(string); r.IsOnline(userID) {
			out = append(out, userID)
		}
		return true
	})
	return out
}
