package app_test

import (
	"context"
	"testing"

	"github.com/clippy-oss/homie/chat-sync/internal/app/apptest"
	"github.com/clippy-oss/homie/chat-sync/internal/service"
)

func TestNewRegistersUserAndBuildsRoster(t *testing.T) {
	world := apptest.NewWorld(t)
	alice := world.Join("alice")
	bob := world.Join("bob")

	users, err := bob.Chat.Users(context.Background())
	if err != nil {
		t.Fatalf("Users() error = %v", err)
	}
	if len(users) != 2 || users[0].ID != "alice" || users[1].ID != "bob" {
		t.Fatalf("Users() = %+v, want alice and bob", users)
	}

	chats, err := alice.Chat.ListChats(context.Background(), service.FilterAll, "")
	if err != nil {
		t.Fatalf("ListChats() error = %v", err)
	}
	if len(chats) != 1 || chats[0].PeerID != "bob" {
		t.Fatalf("ListChats() = %+v, want bob", chats)
	}
}
