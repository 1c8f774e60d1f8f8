package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/realtime"
)

// Directory lists the users the current user can chat with. Entries live
// under users/{id}; every client registers itself on start.
type Directory struct {
	store realtime.Store
	self  domain.Identity
	log   zerolog.Logger
}

func NewDirectory(store realtime.Store, self domain.Identity, log zerolog.Logger) *Directory {
	return &Directory{store: store, self: self, log: log}
}

func userPath(id string) string {
	return realtime.Join(realtime.UsersRoot, id)
}

// Register publishes the current identity to the directory.
func (d *Directory) Register(ctx context.Context) error {
	u := d.self.User()
	if err := d.store.Set(ctx, userPath(u.ID), u); err != nil {
		return fmt.Errorf("failed to register %s: %w", u.ID, err)
	}
	return nil
}

// Users returns every directory entry in identifier order.
func (d *Directory) Users(ctx context.Context) ([]domain.User, error) {
	snap, err := d.store.Get(ctx, realtime.UsersRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var users []domain.User
	for _, child := range snap.Children() {
		var u domain.User
		if err := child.Decode(&u); err != nil {
			d.log.Warn().Err(err).Str("user", child.Key).Msg("skipping malformed directory entry")
			continue
		}
		u.ID = child.Key
		users = append(users, u)
	}
	return users, nil
}

// User returns one directory entry, or nil when the user is unknown.
func (d *Directory) User(ctx context.Context, id string) (*domain.User, error) {
	snap, err := d.store.Get(ctx, userPath(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	if !snap.Exists() {
		return nil, nil
	}
	var u domain.User
	if err := snap.Decode(&u); err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", id, err)
	}
	u.ID = id
	return &u, nil
}
