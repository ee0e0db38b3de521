package relay

// history is a fixed-capacity FIFO of chat messages. Appending beyond
// capacity evicts the oldest entries so the buffer always holds the
// most recent messages in their original order.
type history struct {
	capacity int
	entries  []MessageEvent
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = 50
	}
	return &history{
		capacity: capacity,
		entries:  make([]MessageEvent, 0, capacity),
	}
}

func (h *history) append(msg MessageEvent) {
	h.entries = append(h.entries, msg)
	if len(h.entries) > h.capacity {
		h.entries = h.entries[len(h.entries)-h.capacity:]
	}
}

func (h *history) len() int {
	return len(h.entries)
}

// snapshot returns a copy of the buffered messages, oldest first.
// The result is never nil so it serializes as an empty JSON array.
func (h *history) snapshot() []MessageEvent {
	out := make([]MessageEvent, len(h.entries))
	copy(out, h.entries)
	return out
}
