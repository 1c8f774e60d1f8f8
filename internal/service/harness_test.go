package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/encryption"
	"github.com/clippy-oss/homie/chat-sync/internal/realtime"
	"github.com/clippy-oss/homie/chat-sync/internal/repository"
)

var (
	testNow = time.Date(2024, 3, 10, 15, 4, 0, 0, time.UTC)
	testKDF = encryption.KDFParams{Salt: []byte("test-salt"), Iterations: 1, MemoryKiB: 1024, Parallel: 1}
)

func testCipher(t *testing.T) encryption.Cipher {
	t.Helper()
	c, err := encryption.NewAESGCM("shared-secret", testKDF)
	if err != nil {
		t.Fatalf("NewAESGCM() error = %v", err)
	}
	return c
}

func openCacheDB(t *testing.T, path string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(repository.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// testClient is one signed-in user with its own local cache, sharing the
// realtime store with every other client of the same testEnv.
type testClient struct {
	identity   domain.Identity
	bus        *domain.SimpleEventBus
	cache      repository.MessageCacheRepository
	messages   *MessageStore
	tracker    *DeliveryTracker
	counter    *UnreadCounter
	directory  *Directory
	groups     *GroupService
	dispatcher *Dispatcher
	engine     *Engine
	roster     *Roster
	svc        *ChatService
}

type testEnv struct {
	t      *testing.T
	store  realtime.Store
	mem    *realtime.MemoryStore
	cipher encryption.Cipher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := realtime.NewMemoryStore(realtime.WithMaxRetries(1000))
	t.Cleanup(func() { mem.Close() })
	return &testEnv{t: t, store: mem, mem: mem, cipher: testCipher(t)}
}

type clientConfig struct {
	engine   EngineConfig
	notifier Notifier
}

type clientOption func(*clientConfig)

func withPageSize(n int) clientOption {
	return func(c *clientConfig) { c.engine.PageSize = n }
}

func withNotifier(n Notifier) clientOption {
	return func(c *clientConfig) { c.notifier = n }
}

func (env *testEnv) newClient(id string, opts ...clientOption) *testClient {
	return env.newClientWithDB(id, filepath.Join(env.t.TempDir(), id+".db"), opts...)
}

func (env *testEnv) newClientWithDB(id, dbPath string, opts ...clientOption) *testClient {
	t := env.t
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()

	identity := domain.Identity{UserID: id, Name: "User " + id, Phone: "+1" + id}
	db := openCacheDB(t, dbPath)

	c := &testClient{identity: identity, bus: domain.NewEventBus()}
	c.cache = repository.NewMessageCacheRepository(db)
	c.messages = NewMessageStore(c.cache, repository.NewPreviewRepository(db), env.cipher, 500, log)
	c.tracker = NewDeliveryTracker(env.store, c.bus, log)
	c.counter = NewUnreadCounter(env.store, log)
	c.directory = NewDirectory(env.store, identity, log)
	c.groups = NewGroupService(env.store, log)
	c.dispatcher = NewDispatcher(c.bus, RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxRetries: 3}, log)

	cfg := clientConfig{
		engine: EngineConfig{Identity: identity, Location: time.UTC, Clock: func() time.Time { return testNow }},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c.engine = NewEngine(cfg.engine, EngineDeps{
		Store:      env.store,
		Cipher:     env.cipher,
		Messages:   c.messages,
		Tracker:    c.tracker,
		Counter:    c.counter,
		Directory:  c.directory,
		Groups:     c.groups,
		Dispatcher: c.dispatcher,
		Notifier:   cfg.notifier,
		Bus:        c.bus,
		Log:        log,
	})
	c.roster = NewRoster(identity, RosterDeps{
		Store:     env.store,
		Cipher:    env.cipher,
		Messages:  c.messages,
		Tracker:   c.tracker,
		Counter:   c.counter,
		Directory: c.directory,
		Groups:    c.groups,
		Bus:       c.bus,
		Log:       log,
	}, func() time.Time { return testNow }, time.UTC)
	c.svc = NewChatService(c.engine, c.roster, c.groups, c.directory, c.bus, log)

	if err := c.directory.Register(ctx); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	t.Cleanup(func() {
		c.svc.Close()
		c.dispatcher.Close()
	})
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
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

func (env *testEnv) count(room domain.RoomID, user string) (int, bool) {
	snap, err := env.store.Get(context.Background(), counterPath(room, user))
	if err != nil {
		env.t.Fatalf("Get() error = %v", err)
	}
	return snap.Int(), snap.Exists()
}

func (env *testEnv) storedMessage(room domain.RoomID, key string) domain.Message {
	snap, err := env.store.Get(context.Background(), messagePath(room, key))
	if err != nil {
		env.t.Fatalf("Get() error = %v", err)
	}
	var m domain.Message
	if err := snap.Decode(&m); err != nil {
		env.t.Fatalf("Decode() error = %v", err)
	}
	m.Key = key
	return m
}

// countingStore counts Update calls and can fail some of them.
type countingStore struct {
	realtime.Store

	mu       sync.Mutex
	updates  int
	failNext int
}

var errInjected = errors.New("injected failure")

func (s *countingStore) Update(ctx context.Context, path string, fields map[string]any) error {
	s.mu.Lock()
	s.updates++
	if s.failNext > 0 {
		s.failNext--
		s.mu.Unlock()
		return errInjected
	}
	s.mu.Unlock()
	return s.Store.Update(ctx, path, fields)
}

func (s *countingStore) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// failingTransactStore rejects every transaction, as an unreachable counter
// backend would.
type failingTransactStore struct {
	realtime.Store
}

func (s failingTransactStore) Transact(ctx context.Context, path string, fn realtime.TransactFunc) (realtime.Snapshot, error) {
	return realtime.Snapshot{}, &realtime.TransientError{Op: "transact", Path: path, Err: errInjected}
}

// recordingNotifier counts successful publishes per routing target and
// fails the first failFirst publishes to failUser.
type recordingNotifier struct {
	mu        sync.Mutex
	published map[string]int
	failUser  string
	failFirst int
}

func (n *recordingNotifier) record(target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if target == "user."+n.failUser && n.failFirst > 0 {
		n.failFirst--
		return errInjected
	}
	if n.published == nil {
		n.published = make(map[string]int)
	}
	n.published[target]++
	return nil
}

func (n *recordingNotifier) RoomMessageCreated(ctx context.Context, roomID domain.RoomID, msg *domain.Message) error {
	return n.record("room." + roomID.String())
}

func (n *recordingNotifier) UserMessageCreated(ctx context.Context, roomID domain.RoomID, msg *domain.Message, recipient string) error {
	return n.record("user." + recipient)
}

func (n *recordingNotifier) count(target string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.published[target]
}
