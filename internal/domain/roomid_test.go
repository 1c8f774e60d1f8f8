package domain

import "testing"

func TestPrivateRoomIDIsCommutative(t *testing.T) {
	pairs := [][2]string{
		{"U1", "U2"},
		{"alice", "bob"},
		{"919876543210", "918765432109"},
		{"same", "same"},
		{"", "x"},
	}
	for _, p := range pairs {
		if got, want := PrivateRoomID(p[0], p[1]), PrivateRoomID(p[1], p[0]); got != want {
			t.Fatalf("PrivateRoomID(%q,%q)=%q, reversed=%q", p[0], p[1], got, want)
		}
	}
}

func TestPrivateRoomIDOrdersLexicographically(t *testing.T) {
	if got := PrivateRoomID("U2", "U1"); got != "U1_U2" {
		t.Fatalf("expected U1_U2, got %q", got)
	}
	if got := PrivateRoomID("b", "a"); got != "a_b" {
		t.Fatalf("expected a_b, got %q", got)
	}
}

func TestPrivateRoomIDDistinguishesCounterparts(t *testing.T) {
	ids := []string{"a", "b", "c", "ab", "ba", "abc", "1", "10"}
	seen := make(map[RoomID][2]string)
	for i, a := range ids {
		for _, b := range ids[i:] {
			r := PrivateRoomID(a, b)
			if prev, ok := seen[r]; ok {
				t.Fatalf("collision: %v and %v both map to %q", prev, [2]string{a, b}, r)
			}
			seen[r] = [2]string{a, b}
		}
	}
}

func TestGroupRoomIDIsNotDerived(t *testing.T) {
	if got := GroupRoomID("grp-42"); got != "grp-42" {
		t.Fatalf("expected verbatim group id, got %q", got)
	}
}

func TestValidIdentifier(t *testing.T) {
	cases := map[string]bool{
		"U1":     true,
		"":       false,
		"a_b":    false,
		"+91999": true,
		"a/b":    false,
	}
	for id, want := range cases {
		if got := ValidIdentifier(id); got != want {
			t.Fatalf("ValidIdentifier(%q)=%v, want %v", id, got, want)
		}
	}
}

func TestCounterpart(t *testing.T) {
	r := PrivateRoomID("U1", "U2")
	if got := r.Counterpart("U1"); got != "U2" {
		t.Fatalf("expected U2, got %q", got)
	}
	if got := r.Counterpart("U2"); got != "U1" {
		t.Fatalf("expected U1, got %q", got)
	}
	if got := r.Counterpart("U3"); got != "" {
		t.Fatalf("expected empty for outsider, got %q", got)
	}
}
