package gateway

import (
	"sort"

	"github.com/FrunkQ/dynamic-map-renderer/pkg/server/ingress"

	"github.com/sasha-s/go-deadlock"
)

type room struct {
	members map[ingress.ClientID]struct{}
	// The newest session revision handed to members.
	delivered uint64
	// Serializes deliveries so members see revisions in order.
	mutex deadlock.Mutex
}

// Rooms tracks which connections receive the broadcasts of each session.
type Rooms struct {
	rooms map[string]*room
	// Reverse index used on disconnect.
	joined map[ingress.ClientID]map[string]struct{}
	mutex  deadlock.RWMutex
}

func NewRooms() *Rooms {
	return &Rooms{
		rooms:  make(map[string]*room),
		joined: make(map[ingress.ClientID]map[string]struct{}),
	}
}

func (r *Rooms) get(session string) *room {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.rooms[session]
}

func (r *Rooms) Join(session string, id ingress.ClientID) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	target, ok := r.rooms[session]
	if !ok {
		target = &room{members: make(map[ingress.ClientID]struct{})}
		r.rooms[session] = target
	}

	target.mutex.Lock()
	target.members[id] = struct{}{}
	target.mutex.Unlock()

	sessions, ok := r.joined[id]
	if !ok {
		sessions = make(map[string]struct{})
		r.joined[id] = sessions
	}
	sessions[session] = struct{}{}
}

// LeaveAll removes id from every room and returns the sessions it was in.
func (r *Rooms) LeaveAll(id ingress.ClientID) []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	sessions := r.joined[id]
	delete(r.joined, id)

	left := make([]string, 0, len(sessions))
	for session := range sessions {
		target, ok := r.rooms[session]
		if !ok {
			continue
		}

		target.mutex.Lock()
		delete(target.members, id)
		target.mutex.Unlock()
		left = append(left, session)
	}
	sort.Strings(left)
	return left
}

func (r *Rooms) Members(session string) []ingress.ClientID {
	target := r.get(session)
	if target == nil {
		return nil
	}

	target.mutex.Lock()
	defer target.mutex.Unlock()
	return target.snapshot()
}

func (r *room) snapshot() []ingress.ClientID {
	out := make([]ingress.ClientID, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Rooms) Sessions(id ingress.ClientID) []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]string, 0, len(r.joined[id]))
	for session := range r.joined[id] {
		out = append(out, session)
	}
	sort.Strings(out)
	return out
}

// Broadcast calls deliver for every member of the room at this moment when
// revision is newer than anything the room has seen. Stale revisions are
// skipped since members already hold a newer state.
func (r *Rooms) Broadcast(session string, revision uint64, deliver func(ingress.ClientID)) bool {
	target := r.get(session)
	if target == nil {
		return false
	}

	target.mutex.Lock()
	defer target.mutex.Unlock()

	if revision != 0 && revision <= target.delivered {
		return false
	}
	if revision != 0 {
		target.delivered = revision
	}

	for _, id := range target.snapshot() {
		deliver(id)
	}
	return true
}

// Unicast delivers a state of the room to one member unless the room has
// already broadcast something newer.
func (r *Rooms) Unicast(session string, revision uint64, deliver func()) bool {
	target := r.get(session)
	if target == nil {
		deliver()
		return true
	}

	target.mutex.Lock()
	defer target.mutex.Unlock()

	if revision < target.delivered {
		return false
	}

	deliver()
	return true
}
