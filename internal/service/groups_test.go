package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestGroupService_ReadsGroupsWithDateStrings(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	groups := NewGroupService(env.store, zerolog.Nop())

	legacy := map[string]any{
		"groupId":   "g-legacy",
		"name":      "Family",
		"members":   map[string]any{"U1": map[string]any{"name": "One"}, "U2": map[string]any{"name": "Two"}},
		"createdAt": "Tue Mar 05 2024 14:30:00 GMT+0530 (India Standard Time)",
	}
	if err := env.store.Set(ctx, groupPath("g-legacy"), legacy); err != nil {
		t.Fatal(err)
	}

	g, err := groups.Get(ctx, "g-legacy")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if g.Name != "Family" || g.CreatedAt.IsZero() {
		t.Errorf("group = %+v", g)
	}

	mine, err := groups.ForUser(ctx, "U2")
	if err != nil {
		t.Fatalf("ForUser() error = %v", err)
	}
	if len(mine) != 1 || mine[0].GroupID != "g-legacy" {
		t.Errorf("ForUser() = %v, want the legacy group", mine)
	}
}
