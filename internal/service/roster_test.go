package service

import (
	"context"
	"testing"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/encryption"
)

func roomIDs(entries []domain.ChatListEntry) []domain.RoomID {
	ids := make([]domain.RoomID, len(entries))
	for i, e := range entries {
		ids[i] = e.RoomID
	}
	return ids
}

func sameIDs(a, b []domain.RoomID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRoster_EntriesOrderAndFilters(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u1 := env.newClient("U1")
	u2 := env.newClient("U2")
	u3 := env.newClient("U3")

	r21, _ := u2.engine.OpenRoom(ctx, PrivateTarget("U1"))
	r21.Send(ctx, "hey")
	r21.Send(ctx, "you there?")
	r31, _ := u3.engine.OpenRoom(ctx, PrivateTarget("U1"))
	r31.Send(ctx, "lunch")

	g, err := u2.svc.CreateGroup(ctx, "Team", []string{"U1"})
	if err != nil {
		t.Fatal(err)
	}
	rg, _ := u2.engine.OpenRoom(ctx, GroupTarget(g.GroupID))
	rg.Send(ctx, "standup")
	u2.dispatcher.Wait()
	u3.dispatcher.Wait()

	if err := u1.roster.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "unread totals", func() bool { return u1.roster.TotalUnread() == 4 })

	private12 := domain.PrivateRoomID("U1", "U2")
	private13 := domain.PrivateRoomID("U1", "U3")
	group := domain.GroupRoomID(g.GroupID)

	all := u1.roster.Entries(FilterAll, "")
	if want := []domain.RoomID{private12, private13, group}; !sameIDs(roomIDs(all), want) {
		t.Fatalf("order = %v, want %v", roomIDs(all), want)
	}

	if got := roomIDs(u1.roster.Entries(FilterUnread, "")); !sameIDs(got, []domain.RoomID{private12, private13}) {
		t.Errorf("unread filter = %v", got)
	}
	if got := roomIDs(u1.roster.Entries(FilterGroups, "")); !sameIDs(got, []domain.RoomID{group}) {
		t.Errorf("groups filter = %v", got)
	}
	if got := u1.roster.Entries(FilterRead, ""); len(got) != 0 {
		t.Errorf("read filter = %v, want none", roomIDs(got))
	}
	if got := roomIDs(u1.roster.Entries(FilterAll, "LUNCH")); !sameIDs(got, []domain.RoomID{private13}) {
		t.Errorf("search by message = %v", got)
	}
	if got := roomIDs(u1.roster.Entries(FilterAll, "team")); !sameIDs(got, []domain.RoomID{group}) {
		t.Errorf("search by name = %v", got)
	}

	waitFor(t, "latest preview", func() bool {
		e, _ := u1.roster.Entry(private12)
		return e.LastMessageText == "you there?"
	})
	e, _ := u1.roster.Entry(private12)
	if e.TimeLabel != "03:04 PM" {
		t.Errorf("time label = %q", e.TimeLabel)
	}

	// opening a room resets its counter and moves it to the read filter
	if _, err := u1.engine.OpenRoom(ctx, PrivateTarget("U2")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "reset", func() bool {
		return sameIDs(roomIDs(u1.roster.Entries(FilterRead, "")), []domain.RoomID{private12})
	})
	if got := u1.roster.TotalUnread(); got != 2 {
		t.Errorf("TotalUnread() = %d, want 2", got)
	}
}

func TestRoster_StartSeedsCountAndOpenRoomPreview(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u1 := env.newClient("U1")
	u2 := env.newClient("U2")
	env.newClient("U3")

	r21, _ := u2.engine.OpenRoom(ctx, PrivateTarget("U1"))
	r21.Send(ctx, "one")
	r21.Send(ctx, "two")
	u2.dispatcher.Wait()

	r13, _ := u1.engine.OpenRoom(ctx, PrivateTarget("U3"))
	r13.Send(ctx, "open room")
	waitFor(t, "open room snapshot", func() bool {
		m, ok := u1.messages.Latest(r13.ID())
		return ok && m.Plaintext == "open room"
	})

	if err := u1.roster.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// no waiting: both values are read while the entry is added
	e, ok := u1.roster.Entry(domain.PrivateRoomID("U1", "U2"))
	if !ok || e.UnreadCount != 2 {
		t.Errorf("U2 entry unread = %d (found %v), want 2", e.UnreadCount, ok)
	}
	e, ok = u1.roster.Entry(r13.ID())
	if !ok || e.LastMessageText != "open room" {
		t.Errorf("U3 entry preview = %q (found %v), want open room", e.LastMessageText, ok)
	}
}

func TestRoster_LatestMessageMarkedDelivered(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u1 := env.newClient("U1")
	u2 := env.newClient("U2")

	room, _ := u2.engine.OpenRoom(ctx, PrivateTarget("U1"))
	msg, _ := room.Send(ctx, "ping")

	if err := u1.roster.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "delivered by roster", func() bool {
		return env.storedMessage(room.ID(), msg.Key).Delivered
	})
	if env.storedMessage(room.ID(), msg.Key).Read {
		t.Error("roster marked a message read")
	}
}

func TestRoster_UndecryptablePreviewIsMasked(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u1 := env.newClient("U1")
	env.newClient("U3")

	bad := domain.NewTextMessage("m1", domain.Identity{UserID: "U3"}, &domain.User{ID: "U1"}, "???", testNow)
	env.store.Append(ctx, roomPath("U1_U3"), bad)

	u1.roster.Start(ctx)
	waitFor(t, "masked preview", func() bool {
		e, ok := u1.roster.Entry("U1_U3")
		return ok && e.LastMessageText == encryption.MaskedPlaceholder
	})
}

func TestRoster_CloseLeavesRoomsRunning(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u1 := env.newClient("U1")
	env.newClient("U2")

	u1.roster.Start(ctx)
	room, _ := u1.engine.OpenRoom(ctx, PrivateTarget("U2"))

	u1.roster.Close()
	u1.roster.Close()

	if _, err := room.Send(ctx, "after roster close"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	waitFor(t, "room update", func() bool { return len(room.Messages()) == 1 })
}

func TestParseFilter(t *testing.T) {
	for in, want := range map[string]Filter{"": FilterAll, "Unread": FilterUnread, "groups": FilterGroups, " read ": FilterRead} {
		got, err := ParseFilter(in)
		if err != nil || got != want {
			t.Errorf("ParseFilter(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFilter("archived"); err == nil {
		t.Error("ParseFilter(archived) should fail")
	}
}
