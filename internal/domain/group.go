package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type Member struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

// Group is a group conversation. Presence of a key in Members is membership.
type Group struct {
	GroupID   string            `json:"groupId"`
	Name      string            `json:"name"`
	Members   map[string]Member `json:"members"`
	CreatedAt time.Time         `json:"createdAt"`
}

// UnmarshalJSON accepts createdAt as RFC 3339, as epoch milliseconds, or as
// a JavaScript Date string ("Tue Mar 05 2024 14:30:00 GMT+0530 (IST)").
// Unparseable dates decode as the zero time instead of failing the group.
func (g *Group) UnmarshalJSON(data []byte) error {
	type plain Group
	var raw struct {
		plain
		CreatedAt json.RawMessage `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*g = Group(raw.plain)
	g.CreatedAt = parseCreatedAt(raw.CreatedAt)
	return nil
}

const jsDateLayout = "Mon Jan 02 2006 15:04:05 GMT-0700"

func parseCreatedAt(raw json.RawMessage) time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}
	}
	var millis float64
	if err := json.Unmarshal(raw, &millis); err == nil {
		return time.UnixMilli(int64(millis)).UTC()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if i := strings.Index(s, " ("); i >= 0 {
		s = s[:i]
	}
	if t, err := time.Parse(jsDateLayout, s); err == nil {
		return t
	}
	return time.Time{}
}

func (g *Group) IsMember(userID string) bool {
	if g == nil {
		return false
	}
	_, ok := g.Members[userID]
	return ok
}

// MemberIDs returns member identifiers in no particular order.
func (g *Group) MemberIDs() []string {
	if g == nil {
		return nil
	}
	ids := make([]string, 0, len(g.Members))
	for id := range g.Members {
		ids = append(ids, id)
	}
	return ids
}

func (g *Group) RoomID() RoomID {
	return GroupRoomID(g.GroupID)
}
