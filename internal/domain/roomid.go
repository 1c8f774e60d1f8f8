package domain

import "strings"

// RoomSeparator joins the two participant identifiers of a private room.
// Identifiers must not contain it.
const RoomSeparator = "_"

// RoomID identifies a conversation in the realtime store.
type RoomID string

func (r RoomID) String() string { return string(r) }

// PrivateRoomID returns the room key shared by a and b. The result does not
// depend on argument order.
func PrivateRoomID(a, b string) RoomID {
	if a < b {
		return RoomID(a + RoomSeparator + b)
	}
	return RoomID(b + RoomSeparator + a)
}

// GroupRoomID accepts an externally issued group identifier as a room key.
func GroupRoomID(groupID string) RoomID {
	return RoomID(groupID)
}

// ValidIdentifier reports whether id can take part in a private room key.
// Identifiers are also store path segments, so '/' is rejected too.
func ValidIdentifier(id string) bool {
	return id != "" && !strings.ContainsAny(id, RoomSeparator+"/")
}

// Counterpart returns the other participant of a private room, or "" if
// self is not one of its participants.
func (r RoomID) Counterpart(self string) string {
	a, b, ok := strings.Cut(string(r), RoomSeparator)
	if !ok {
		return ""
	}
	switch self {
	case a:
		return b
	case b:
		return a
	}
	return ""
}
