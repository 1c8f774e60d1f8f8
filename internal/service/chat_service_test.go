package service

import (
	"context"
	"errors"
	"testing"
)

func TestChatService_RoomFlow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u1 := env.newClient("U1")
	u2 := env.newClient("U2")

	view, err := u1.svc.OpenPrivate(ctx, "U2")
	if err != nil {
		t.Fatalf("OpenPrivate() error = %v", err)
	}
	if view.Name != "User U2" {
		t.Errorf("room name = %q, want directory name", view.Name)
	}

	// rooms resolve by room id and by peer id
	if _, err := u1.svc.SendMessage(ctx, "U2", "hello"); err != nil {
		t.Fatalf("SendMessage(peer) error = %v", err)
	}
	if _, err := u1.svc.SendMessage(ctx, string(view.RoomID), "again"); err != nil {
		t.Fatalf("SendMessage(room) error = %v", err)
	}
	u1.dispatcher.Wait()

	chats, err := u2.svc.ListChats(ctx, FilterUnread, "")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "unread entry", func() bool {
		chats, _ = u2.svc.ListChats(ctx, FilterUnread, "")
		return len(chats) == 1 && chats[0].UnreadCount == 2
	})

	if _, err := u2.svc.OpenPrivate(ctx, "U1"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "messages", func() bool {
		v, _ := u2.svc.GetMessages("U1")
		return v.MessageCount == 2
	})
	n, err := u2.svc.MarkAllVisible(ctx, "U1")
	if err != nil || n != 2 {
		t.Fatalf("MarkAllVisible() = %d, %v", n, err)
	}

	st := u2.svc.Status()
	if st.UserID != "U2" || len(st.OpenRooms) != 1 {
		t.Errorf("status = %+v", st)
	}

	if err := u2.svc.CloseRoom("U1"); err != nil {
		t.Fatalf("CloseRoom() error = %v", err)
	}
	if _, err := u2.svc.GetMessages("U1"); !errors.Is(err, ErrRoomNotOpen) {
		t.Errorf("GetMessages() after close error = %v, want ErrRoomNotOpen", err)
	}
}

func TestChatService_CreateGroupValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u1 := env.newClient("U1")

	if _, err := u1.svc.CreateGroup(ctx, "G", []string{"bad_id"}); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("CreateGroup() error = %v, want ErrInvalidIdentifier", err)
	}
	if _, err := u1.svc.CreateGroup(ctx, "  ", []string{"U2"}); err == nil {
		t.Error("CreateGroup() with blank name should fail")
	}

	g, err := u1.svc.CreateGroup(ctx, "Friends", []string{"U2"})
	if err != nil {
		t.Fatal(err)
	}
	if name := u1.groups.Name(ctx, g.GroupID); name != "Friends" {
		t.Errorf("Name() = %q", name)
	}
	if name := u1.groups.Name(ctx, "missing"); name != DefaultGroupName {
		t.Errorf("Name(missing) = %q, want %q", name, DefaultGroupName)
	}
	groups, _ := u1.svc.ListChats(ctx, FilterGroups, "")
	if len(groups) != 1 || groups[0].Name != "Friends" {
		t.Errorf("group entries = %+v", groups)
	}
}
