package chathub

import "sync"

// room is one fan-out unit. A closed room has been removed from the
// registry and must not gain members.
type room struct {
	mu      sync.RWMutex
	members map[string]Client
	closed  bool
}

// Registry tracks which connections are subscribed to which rooms. The room
// map is locked only to find, create or delete a room; membership changes
// lock the single room they touch.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room

	connMu sync.Mutex
	conns  map[string]map[string]struct{}
}

// NewRegistry Constructor
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*room),
		conns: make(map[string]map[string]struct{}),
	}
}

func (r *Registry) getOrCreate(roomID string) *room {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return rm
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok = r.rooms[roomID]; ok {
		return rm
	}
	rm = &room{members: make(map[string]Client)}
	r.rooms[roomID] = rm
	return rm
}

func (r *Registry) lookup(roomID string) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

// Join subscribes c to roomID. Joining twice is a no-op.
func (r *Registry) Join(c Client, roomID string) {
	for {
		rm := r.getOrCreate(roomID)
		rm.mu.Lock()
		if rm.closed {
			// Lost a race with the last member leaving; the room is gone.
			rm.mu.Unlock()
			continue
		}
		rm.members[c.GetID()] = c
		rm.mu.Unlock()
		break
	}

	r.connMu.Lock()
	joined, ok := r.conns[c.GetID()]
	if !ok {
		joined = make(map[string]struct{})
		r.conns[c.GetID()] = joined
	}
	joined[roomID] = struct{}{}
	r.connMu.Unlock()
}

// Leave unsubscribes c from roomID. Leaving a room c is not in is a no-op.
func (r *Registry) Leave(c Client, roomID string) {
	r.leave(c.GetID(), roomID)

	r.connMu.Lock()
	if joined, ok := r.conns[c.GetID()]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.conns, c.GetID())
		}
	}
	r.connMu.Unlock()
}

// leave removes connID from the room and drops the room once it is empty.
// Lock order is always room then registry.
func (r *Registry) leave(connID, roomID string) {
	rm := r.lookup(roomID)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, ok := rm.members[connID]; !ok {
		return
	}
	delete(rm.members, connID)
	if len(rm.members) > 0 {
		return
	}

	rm.closed = true
	r.mu.Lock()
	if r.rooms[roomID] == rm {
		delete(r.rooms, roomID)
	}
	r.mu.Unlock()
}

// MembersOf returns a snapshot of the room's members. Later joins and leaves
// do not affect the returned slice.
func (r *Registry) MembersOf(roomID string) []Client {
	rm := r.lookup(roomID)
	if rm == nil {
		return nil
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make([]Client, 0, len(rm.members))
	for _, c := range rm.members {
		out = append(out, c)
	}
	return out
}

// IsMember reports whether c is currently subscribed to roomID.
func (r *Registry) IsMember(c Client, roomID string) bool {
	rm := r.lookup(roomID)
	if rm == nil {
		return false
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	_, ok := rm.members[c.GetID()]
	return ok
}

// RemoveConnection unsubscribes c from every room and returns the rooms it
// was in.
func (r *Registry) RemoveConnection(c Client) []string {
	r.connMu.Lock()
	joined := r.conns[c.GetID()]
	delete(r.conns, c.GetID())
	r.connMu.Unlock()

	left := make([]string, 0, len(joined))
	for roomID := range joined {
		r.leave(c.GetID(), roomID)
		left = append(left, roomID)
	}
	return left
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
