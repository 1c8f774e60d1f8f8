package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/realtime"
)

// DefaultGroupName is shown for groups without a stored name.
const DefaultGroupName = "Group"

type GroupService struct {
	store realtime.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewGroupService(store realtime.Store, log zerolog.Logger) *GroupService {
	return &GroupService{store: store, log: log, now: time.Now}
}

func groupPath(id string) string {
	return realtime.Join(realtime.GroupsRoot, id)
}

// Create stores a new group with a fresh identifier. members must include
// the creator.
func (s *GroupService) Create(ctx context.Context, name string, members map[string]domain.Member) (*domain.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("group name is required")
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("group needs at least one member")
	}
	for id := range members {
		if !domain.ValidIdentifier(id) {
			return nil, fmt.Errorf("%w: member %q", ErrInvalidIdentifier, id)
		}
	}

	g := &domain.Group{
		GroupID:   uuid.NewString(),
		Name:      name,
		Members:   members,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Set(ctx, groupPath(g.GroupID), g); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	s.log.Info().Str("group", g.GroupID).Int("members", len(members)).Msg("Group created")
	return g, nil
}

func (s *GroupService) Get(ctx context.Context, id string) (*domain.Group, error) {
	if id == "" || strings.Contains(id, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	snap, err := s.store.Get(ctx, groupPath(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get group %s: %w", id, err)
	}
	if !snap.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, id)
	}
	var g domain.Group
	if err := snap.Decode(&g); err != nil {
		return nil, fmt.Errorf("failed to decode group %s: %w", id, err)
	}
	g.GroupID = id
	return &g, nil
}

// Members reads the current member map of a group.
func (s *GroupService) Members(ctx context.Context, id string) (map[string]domain.Member, error) {
	snap, err := s.store.Get(ctx, realtime.Join(groupPath(id), "members"))
	if err != nil {
		return nil, fmt.Errorf("failed to get members of %s: %w", id, err)
	}
	members := make(map[string]domain.Member)
	if err := snap.Decode(&members); err != nil {
		return nil, fmt.Errorf("failed to decode members of %s: %w", id, err)
	}
	return members, nil
}

// ForUser returns the groups that list userID as a member, in identifier
// order.
func (s *GroupService) ForUser(ctx context.Context, userID string) ([]*domain.Group, error) {
	snap, err := s.store.Get(ctx, realtime.GroupsRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	var groups []*domain.Group
	for _, child := range snap.Children() {
		var g domain.Group
		if err := child.Decode(&g); err != nil {
			s.log.Warn().Err(err).Str("group", child.Key).Msg("skipping malformed group")
			continue
		}
		g.GroupID = child.Key
		if g.IsMember(userID) {
			groups = append(groups, &g)
		}
	}
	return groups, nil
}

// Name returns the group's display name, DefaultGroupName when it has none
// or cannot be read.
func (s *GroupService) Name(ctx context.Context, id string) string {
	g, err := s.Get(ctx, id)
	if err != nil || g.Name == "" {
		return DefaultGroupName
	}
	return g.Name
}
