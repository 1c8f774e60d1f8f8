// Package apptest builds App instances over an in-memory realtime store for
// tests of the outer surfaces.
package apptest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/clippy-oss/homie/chat-sync/internal/app"
	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/encryption"
	"github.com/clippy-oss/homie/chat-sync/internal/realtime"
	"github.com/clippy-oss/homie/chat-sync/internal/repository"
	"github.com/clippy-oss/homie/chat-sync/internal/service"
)

// Now is the fixed clock of every App built here.
var Now = time.Date(2024, 3, 10, 15, 4, 0, 0, time.UTC)

// World is a realtime store shared by several users.
type World struct {
	t      *testing.T
	Store  *realtime.MemoryStore
	Cipher encryption.Cipher
}

func NewWorld(t *testing.T) *World {
	t.Helper()
	c, err := encryption.NewAESGCM("shared-secret", encryption.KDFParams{
		Salt: []byte("test-salt"), Iterations: 1, MemoryKiB: 1024, Parallel: 1,
	})
	if err != nil {
		t.Fatalf("NewAESGCM() error = %v", err)
	}
	store := realtime.NewMemoryStore(realtime.WithMaxRetries(1000))
	t.Cleanup(func() { store.Close() })
	return &World{t: t, Store: store, Cipher: c}
}

// Join signs id in with its own sqlite cache.
func (w *World) Join(id string) *app.App {
	t := w.t
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), id+".db")), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(repository.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	a, err := app.New(context.Background(), app.Options{
		Identity: domain.Identity{UserID: id, Name: "User " + id, Phone: "+1" + id},
		Store:    w.Store,
		Cipher:   w.Cipher,
		DB:       db,
		PageSize: 50,
		Retry:    service.RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxRetries: 3},
		Location: time.UTC,
		Clock:    func() time.Time { return Now },
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	t.Cleanup(func() {
		a.Close()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return a
}

// WaitFor polls cond until it holds or a few seconds pass.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
