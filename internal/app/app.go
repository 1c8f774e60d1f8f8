// Package app assembles the chat services for one signed-in identity.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/encryption"
	"github.com/clippy-oss/homie/chat-sync/internal/realtime"
	"github.com/clippy-oss/homie/chat-sync/internal/repository"
	"github.com/clippy-oss/homie/chat-sync/internal/service"
)

type Options struct {
	Identity domain.Identity
	Store    realtime.Store
	Cipher   encryption.Cipher
	// DB holds the local message cache. It must already be migrated.
	DB *gorm.DB
	// Notifier is optional.
	Notifier       service.Notifier
	PageSize       int
	CacheRetention int
	Retry          service.RetryPolicy
	Location       *time.Location
	Clock          func() time.Time
	Log            zerolog.Logger
}

type App struct {
	Chat       *service.ChatService
	Bus        *domain.SimpleEventBus
	Engine     *service.Engine
	Roster     *service.Roster
	Dispatcher *service.Dispatcher
}

// New wires the services, registers the identity in the directory and
// builds the initial chat list.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.Retry == (service.RetryPolicy{}) {
		opts.Retry = service.DefaultRetryPolicy
	}
	module := func(name string) zerolog.Logger {
		return opts.Log.With().Str("module", name).Logger()
	}

	bus := domain.NewEventBus()
	messages := service.NewMessageStore(
		repository.NewMessageCacheRepository(opts.DB),
		repository.NewPreviewRepository(opts.DB),
		opts.Cipher,
		opts.CacheRetention,
		module("messages"),
	)
	tracker := service.NewDeliveryTracker(opts.Store, bus, module("delivery"))
	counter := service.NewUnreadCounter(opts.Store, module("unread"))
	directory := service.NewDirectory(opts.Store, opts.Identity, module("directory"))
	groups := service.NewGroupService(opts.Store, module("groups"))
	dispatcher := service.NewDispatcher(bus, opts.Retry, module("dispatcher"))

	engine := service.NewEngine(service.EngineConfig{
		Identity: opts.Identity,
		PageSize: opts.PageSize,
		Location: opts.Location,
		Clock:    opts.Clock,
	}, service.EngineDeps{
		Store:      opts.Store,
		Cipher:     opts.Cipher,
		Messages:   messages,
		Tracker:    tracker,
		Counter:    counter,
		Directory:  directory,
		Groups:     groups,
		Dispatcher: dispatcher,
		Notifier:   opts.Notifier,
		Bus:        bus,
		Log:        module("engine"),
	})
	roster := service.NewRoster(opts.Identity, service.RosterDeps{
		Store:     opts.Store,
		Cipher:    opts.Cipher,
		Messages:  messages,
		Tracker:   tracker,
		Counter:   counter,
		Directory: directory,
		Groups:    groups,
		Bus:       bus,
		Log:       module("roster"),
	}, opts.Clock, opts.Location)

	chat := service.NewChatService(engine, roster, groups, directory, bus, module("chat"))
	a := &App{Chat: chat, Bus: bus, Engine: engine, Roster: roster, Dispatcher: dispatcher}

	if err := directory.Register(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to register user: %w", err)
	}
	if err := roster.Start(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build chat list: %w", err)
	}
	return a, nil
}

// Close closes every room, stops the roster and cancels pending fan-out.
func (a *App) Close() {
	a.Chat.Close()
	a.Dispatcher.Close()
}
