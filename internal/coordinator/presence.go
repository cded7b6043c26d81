package coordinator

import "sync"

// Presence tracks which connections are in which room. A connection occupies
// at most one room; joining a second room moves it. Counts are always derived
// from the member set, never stored separately.
//
// notify, when set, is invoked for every mutation that changes a room's
// count, while the tracker's lock is still held. That keeps per-room count
// notifications in mutation order. The callback must not block and must not
// re-enter the tracker.
type Presence struct {
	mu     sync.Mutex
	rooms  map[string]map[string]struct{} // session id -> member connection ids
	member map[string]string              // connection id -> session id
	peaks  map[string]int                 // session id -> high-water member count

	notify func(sessionID string, count int)
}

func NewPresence(notify func(sessionID string, count int)) *Presence {
	return &Presence{
		rooms:  make(map[string]map[string]struct{}),
		member: make(map[string]string),
		peaks:  make(map[string]int),
		notify: notify,
	}
}

// Join adds a connection to a room and returns the new member count. Joining
// a room the connection is already in is a no-op. If the connection was in a
// different room it is removed from there first, and that room's members are
// notified of the drop.
func (p *Presence) Join(sessionID, connID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current, ok := p.member[connID]; ok {
		if current == sessionID {
			return len(p.rooms[sessionID])
		}
		p.removeLocked(current, connID)
	}

	room, ok := p.rooms[sessionID]
	if !ok {
		room = make(map[string]struct{})
		p.rooms[sessionID] = room
	}
	room[connID] = struct{}{}
	p.member[connID] = sessionID

	count := len(room)
	if count > p.peaks[sessionID] {
		p.peaks[sessionID] = count
	}
	if p.notify != nil {
		p.notify(sessionID, count)
	}
	return count
}

// Leave removes a connection from a room and returns the new member count,
// plus whether the connection was actually removed. Leaving a room the
// connection is not in is a no-op and reports false.
func (p *Presence) Leave(sessionID, connID string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.member[connID] != sessionID {
		return len(p.rooms[sessionID]), false
	}
	p.removeLocked(sessionID, connID)
	return len(p.rooms[sessionID]), true
}

// Disconnect removes a connection from whichever room it occupies. It reports
// the room left, the room's new count, and whether the connection was in a
// room at all. This is the mandatory cleanup path for closed, timed-out, and
// crashed connections; without it counts would only ever grow.
func (p *Presence) Disconnect(connID string) (sessionID string, count int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sessionID, ok = p.member[connID]
	if !ok {
		return "", 0, false
	}
	p.removeLocked(sessionID, connID)
	return sessionID, len(p.rooms[sessionID]), true
}

// Total returns the number of connections currently in any room.
func (p *Presence) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.member)
}

// CountOf returns the current member count of a room.
func (p *Presence) CountOf(sessionID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rooms[sessionID])
}

// PeakOf returns the highest member count a room has reached.
func (p *Presence) PeakOf(sessionID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peaks[sessionID]
}

// DropRoomIfEmpty deletes a room's bookkeeping once it has no members.
// Callers invoke this when the session is no longer live; a live room is
// retained even at zero members so a late joiner finds it.
func (p *Presence) DropRoomIfEmpty(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rooms[sessionID]) > 0 {
		return false
	}
	delete(p.rooms, sessionID)
	delete(p.peaks, sessionID)
	return true
}

// removeLocked removes connID from sessionID's room and notifies the room.
// Callers hold p.mu and have verified membership.
func (p *Presence) removeLocked(sessionID, connID string) {
	room := p.rooms[sessionID]
	delete(room, connID)
	delete(p.member, connID)
	if p.notify != nil {
		p.notify(sessionID, len(room))
	}
}
