package session

import (
	"github.com/FrunkQ/dynamic-map-renderer/pkg/state"

	"github.com/repeale/fp-go/option"
	"github.com/sasha-s/go-deadlock"
)

type entry struct {
	// Held for the whole read-modify-write of an update.
	mutex deadlock.Mutex
	state state.State
	// Bumped on every stored change.
	revision uint64
}

// Registry owns the state of every session for the lifetime of the process.
// Sessions are never removed.
type Registry struct {
	repo     *state.Repository
	sessions map[string]*entry
	mutex    deadlock.RWMutex
}

func NewRegistry(repo *state.Repository) *Registry {
	return &Registry{
		repo:     repo,
		sessions: make(map[string]*entry),
	}
}

func (r *Registry) lookup(id string) (*entry, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	session, ok := r.sessions[id]
	return session, ok
}

// ensure returns the entry for id, creating it with the default state when
// it does not exist. Only one default is ever stored per id.
func (r *Registry) ensure(id string) *entry {
	if session, ok := r.lookup(id); ok {
		return session
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if session, ok := r.sessions[id]; ok {
		return session
	}

	session := &entry{state: r.repo.DefaultState()}
	r.sessions[id] = session
	return session
}

func (r *Registry) Get(id string) opt.Option[state.State] {
	session, ok := r.lookup(id)
	if !ok {
		return opt.None[state.State]()
	}

	session.mutex.Lock()
	defer session.mutex.Unlock()
	return opt.Some(session.state.Clone())
}

func (r *Registry) GetOrCreate(id string) state.State {
	current, _ := r.Snapshot(id)
	return current
}

// Snapshot is GetOrCreate that also returns the revision of the state.
func (r *Registry) Snapshot(id string) (state.State, uint64) {
	session := r.ensure(id)

	session.mutex.Lock()
	defer session.mutex.Unlock()
	return session.state.Clone(), session.revision
}

func (r *Registry) Set(id string, value state.State) uint64 {
	session := r.ensure(id)

	session.mutex.Lock()
	defer session.mutex.Unlock()
	session.state = value.Clone()
	session.revision++
	return session.revision
}

// UpdateFunc receives a private copy of the current state and returns the
// state to store. Returning false leaves the session untouched.
type UpdateFunc func(current state.State) (state.State, bool)

// Update runs fn with exclusive access to the session, creating the session
// first when needed. It returns the stored state, its revision and whether
// fn committed. Updates to different sessions do not block each other.
func (r *Registry) Update(id string, fn UpdateFunc) (state.State, uint64, bool) {
	session := r.ensure(id)

	session.mutex.Lock()
	defer session.mutex.Unlock()

	next, ok := fn(session.state.Clone())
	if !ok {
		return session.state.Clone(), session.revision, false
	}

	session.state = next.Clone()
	session.revision++
	return next, session.revision, true
}

func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.sessions)
}
