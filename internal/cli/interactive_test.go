package cli

import (
	"context"
	"strings"
	"testing"

	"github.com/clippy-oss/homie/chat-sync/internal/app/apptest"
)

func TestInteractiveRun(t *testing.T) {
	world := apptest.NewWorld(t)
	h := NewCommandHandler(world.Join("alice").Chat)
	world.Join("bob")

	in := "/chats\n/open bob\n/nope\n/quit\n/status\n"
	out := &syncBuffer{}

	if err := NewInteractiveCLI(h, strings.NewReader(in), out).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Signed in as User alice (alice)",
		"1. User bob (private)",
		"User bob [alice_bob]",
		"No messages yet.",
		"Error: unknown command: nope",
		"Goodbye!",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Open rooms") {
		t.Error("command after /quit was executed")
	}
}
