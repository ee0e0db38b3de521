package relay

import "strconv"

// registry tracks every live room by identifier. Identifiers come from
// a monotonic counter and are never reused after a room is deleted.
//
// The registry carries no lock of its own: all access is serialized by
// the hub mutex, which is what keeps find-and-join atomic with respect
// to concurrent joins and leaves.
type registry struct {
	rooms  map[string]*Room
	order  []string // room ids in creation order
	nextID int64
}

func newRegistry() *registry {
	return &registry{
		rooms:  make(map[string]*Room),
		nextID: 1,
	}
}

// create allocates a new empty room owned by the given name.
func (reg *registry) create(owner string, historyCapacity int) *Room {
	id := strconv.FormatInt(reg.nextID, 10)
	reg.nextID++

	room := newRoom(id, owner, historyCapacity)
	reg.rooms[id] = room
	reg.order = append(reg.order, id)
	return room
}

func (reg *registry) get(id string) (*Room, bool) {
	room, ok := reg.rooms[id]
	return room, ok
}

// findJoinable returns the oldest room whose owner matches and that has
// exactly one member, meaning the occupant is waiting for a partner.
// Scanning in creation order keeps first-match behavior deterministic
// when several waiting rooms share an owner name.
func (reg *registry) findJoinable(owner string) (*Room, bool) {
	for _, id := range reg.order {
		room := reg.rooms[id]
		if room.owner == owner && room.memberCount() == 1 {
			return room, true
		}
	}
	return nil, false
}

// remove deletes a room from the registry. Callers only invoke this
// once the member set is empty.
func (reg *registry) remove(id string) {
	delete(reg.rooms, id)
	for i, existing := range reg.order {
		if existing == id {
			reg.order = append(reg.order[:i], reg.order[i+1:]...)
			break
		}
	}
}

func (reg *registry) roomCount() int {
	return len(reg.rooms)
}
