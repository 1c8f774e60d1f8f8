package realtime

import "strings"

// Well-known roots of the chat data layout.
const (
	ChatsRoot  = "chats"
	UnreadRoot = "unreadCounts"
	GroupsRoot = "groups"
	UsersRoot  = "users"
)

// Join builds a store path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

func splitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil
	}
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if s == "" || s == "." || s == ".." {
			return nil, ErrInvalidPath
		}
	}
	return segs, nil
}

// related reports whether a change at one path is visible from the other,
// i.e. one is an ancestor of (or equal to) the other.
func related(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
