package relay

// Room is a bounded chat session keyed by an owner display name. The id
// and owner are immutable after creation; the member set and history
// are mutated only while holding the hub lock. Rooms reference member
// connections but never own them.
type Room struct {
	id      string
	owner   string
	members map[*Client]struct{}
	history *history
}

func newRoom(id, owner string, historyCapacity int) *Room {
	return &Room{
		id:      id,
		owner:   owner,
		members: make(map[*Client]struct{}),
		history: newHistory(historyCapacity),
	}
}

// ID returns the room's unique identifier.
func (r *Room) ID() string { return r.id }

// Owner returns the display name this room is addressed by.
func (r *Room) Owner() string { return r.owner }

func (r *Room) addMember(c *Client) {
	r.members[c] = struct{}{}
}

func (r *Room) removeMember(c *Client) {
	delete(r.members, c)
}

func (r *Room) memberCount() int {
	return len(r.members)
}

// memberNames lists the display names of members that have completed a
// join, in no particular order.
func (r *Room) memberNames() []string {
	names := make([]string, 0, len(r.members))
	for member := range r.members {
		if member.name != "" {
			names = append(names, member.name)
		}
	}
	return names
}
