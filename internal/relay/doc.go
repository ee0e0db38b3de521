// Package relay implements the core coordination logic of the Parley
// message relay: the room registry, join routing, bounded per-room
// history, broadcast fan-out, and the heartbeat loop that reclaims dead
// connections.
package relay
