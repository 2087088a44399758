package presence

import (
	"sort"
	"sync"
	"time"
)

// Transition is emitted when a user goes from zero to one live connection or
// from one to zero.
type Transition struct {
	UserID string
	Online bool
	At     time.Time
}

// Listener observes presence transitions. It runs under the registry lock, so
// it must be quick and must not call back into the Registry.
type Listener func(Transition)

// Registry maps users to their live connection ids. A user is online iff the
// set is non-empty.
type Registry struct {
	mu     sync.Mutex
	users  map[string]map[string]struct{} // userID -> connIDs
	conns  map[string]map[string]struct{} // connID -> userIDs
	notify Listener
	now    func() time.Time
}

func NewRegistry(l Listener) *Registry {
	return &Registry{
		users:  make(map[string]map[string]struct{}),
		conns:  make(map[string]map[string]struct{}),
		notify: l,
		now:    time.Now,
	}
}

// Join binds connID to userID. It reports whether the user just came online.
// Joining twice with the same pair is a no-op.
func (r *Registry) Join(userID, connID string) bool {
	if userID == "" || connID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]struct{})
		r.users[userID] = set
	}
	if _, dup := set[connID]; dup {
		return false
	}
	set[connID] = struct{}{}

	if _, ok := r.conns[connID]; !ok {
		r.conns[connID] = make(map[string]struct{})
	}
	r.conns[connID][userID] = struct{}{}

	if len(set) == 1 {
		r.emit(userID, true)
		return true
	}
	return false
}

// Leave unbinds connID from userID. It reports whether the user just went offline.
func (r *Registry) Leave(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if users, ok := r.conns[connID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(r.conns, connID)
		}
	}
	return r.remove(userID, connID)
}

// DisconnectAll drops every binding held by connID and returns the users that
// went offline as a result.
func (r *Registry) DisconnectAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, ok := r.conns[connID]
	if !ok {
		return nil
	}
	delete(r.conns, connID)

	ids := make([]string, 0, len(users))
	for u := range users {
		ids = append(ids, u)
	}
	sort.Strings(ids)

	var offline []string
	for _, u := range ids {
		if r.remove(u, connID) {
			offline = append(offline, u)
		}
	}
	return offline
}

// remove must be called with r.mu held.
func (r *Registry) remove(userID, connID string) bool {
	set, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, bound := set[connID]; !bound {
		return false
	}
	delete(set, connID)
	if len(set) > 0 {
		return false
	}
	delete(r.users, userID)
	r.emit(userID, false)
	return true
}

func (r *Registry) emit(userID string, online bool) {
	if r.notify != nil {
		r.notify(Transition{UserID: userID, Online: online, At: r.now().UTC()})
	}
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users[userID]) > 0
}

// Connections returns how many live connections userID holds.
func (r *Registry) Connections(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users[userID])
}

// Online lists online users in lexical order.
func (r *Registry) Online() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.users))
	for u := range r.users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Fanout calls each non-nil listener in order.
func Fanout(ls ...Listener) Listener {
	return func(t Transition) {
		for _, l := range ls {
			if l != nil {
				l(t)
			}
		}
	}
}
