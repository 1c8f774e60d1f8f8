package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultMaxRetries = 32

// MemoryStore is an in-process Store. It keeps one JSON tree guarded by a
// mutex and implements Transact optimistically: fn runs outside the lock and
// the commit only succeeds if the cell still holds the value fn saw.
type MemoryStore struct {
	mu     sync.Mutex
	root   map[string]any
	subs   map[*Subscription]struct{}
	closed bool

	maxRetries int
	newKey     func() string
	log        zerolog.Logger

	// beforeCommit runs between a transaction's read and its commit.
	beforeCommit func(path string)
}

type MemoryOption func(*MemoryStore)

func WithMaxRetries(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func WithLogger(log zerolog.Logger) MemoryOption {
	return func(s *MemoryStore) {
		s.log = log
	}
}

// WithKeyGenerator replaces the push-key generator. Keys must sort in
// creation order.
func WithKeyGenerator(fn func() string) MemoryOption {
	return func(s *MemoryStore) {
		s.newKey = fn
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		root:       make(map[string]any),
		subs:       make(map[*Subscription]struct{}),
		maxRetries: defaultMaxRetries,
		newKey:     newPushKey,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newPushKey returns a UUIDv7, whose string form sorts by creation time.
func newPushKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *MemoryStore) Append(ctx context.Context, path string, value any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	segs, err := splitPath(path)
	if err != nil {
		return "", err
	}
	norm, err := normalize(value)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	key := s.newKey()
	full := append(append([]string{}, segs...), key)
	s.setLocked(full, norm)
	s.notifyLocked(full)
	return key, nil
}

func (s *MemoryStore) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segs, err := splitPath(path)
	if err != nil {
		return err
	}

	normalized := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, err := splitPath(k); err != nil || k == "" {
			return fmt.Errorf("%w: field %q", ErrInvalidPath, k)
		}
		nv, err := normalize(v)
		if err != nil {
			return err
		}
		normalized[k] = nv
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	for k, v := range normalized {
		fieldSegs, _ := splitPath(k)
		s.setLocked(append(append([]string{}, segs...), fieldSegs...), v)
	}
	s.notifyLocked(segs)
	return nil
}

func (s *MemoryStore) Set(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	norm, err := normalize(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.setLocked(segs, norm)
	s.notifyLocked(segs)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, path string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	return Snapshot{Path: path, Value: clone(s.getLocked(segs))}, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, path string, opts ...SubscribeOption) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	var sub *Subscription
	sub = newSubscription(path, segs, o.limitToLast, func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	})
	s.subs[sub] = struct{}{}
	sub.push(s.snapshotLocked(sub))

	go func() {
		select {
		case <-ctx.Done():
			sub.Cancel()
		case <-sub.Done():
		}
	}()

	return sub, nil
}

func (s *MemoryStore) Transact(ctx context.Context, path string, fn TransactFunc) (Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return Snapshot{}, ErrClosed
		}
		seen := clone(s.getLocked(segs))
		s.mu.Unlock()

		next, err := fn(clone(seen))
		if err != nil {
			return Snapshot{}, err
		}
		norm, err := normalize(next)
		if err != nil {
			return Snapshot{}, err
		}

		if s.beforeCommit != nil {
			s.beforeCommit(path)
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return Snapshot{}, ErrClosed
		}
		if !reflect.DeepEqual(s.getLocked(segs), seen) {
			s.mu.Unlock()
			s.log.Debug().Str("path", path).Int("attempt", attempt+1).Msg("transaction conflict, retrying")
			continue
		}
		s.setLocked(segs, norm)
		s.notifyLocked(segs)
		s.mu.Unlock()

		return Snapshot{Path: path, Value: clone(norm)}, nil
	}

	return Snapshot{}, &TransientError{Op: "transact", Path: path, Err: ErrTooManyRetries}
}

func (s *MemoryStore) Page(ctx context.Context, path string, beforeKey string, limit int) ([]Child, error) {
	snap, err := s.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	children := snap.Children()
	if beforeKey != "" {
		n := sort.Search(len(children), func(i int) bool { return children[i].Key >= beforeKey })
		children = children[:n]
	}
	if limit > 0 && len(children) > limit {
		children = children[len(children)-limit:]
	}
	return children, nil
}

// Close cancels every subscription and rejects further calls.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	return nil
}

func (s *MemoryStore) getLocked(segs []string) any {
	var node any = s.root
	for _, seg := range segs {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node, ok = obj[seg]
		if !ok {
			return nil
		}
	}
	return node
}

// setLocked writes value at segs, creating intermediate objects. Writing nil
// deletes the value and prunes objects left empty.
func (s *MemoryStore) setLocked(segs []string, value any) {
	if len(segs) == 0 {
		if obj, ok := value.(map[string]any); ok {
			s.root = obj
		} else {
			s.root = make(map[string]any)
		}
		return
	}

	parents := make([]map[string]any, len(segs))
	node := s.root
	for i, seg := range segs[:len(segs)-1] {
		parents[i] = node
		child, ok := node[seg].(map[string]any)
		if !ok {
			if value == nil {
				return
			}
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
	parents[len(segs)-1] = node

	last := segs[len(segs)-1]
	if value != nil {
		node[last] = value
		return
	}

	delete(node, last)
	for i := len(segs) - 1; i > 0; i-- {
		if len(parents[i]) > 0 {
			break
		}
		delete(parents[i-1], segs[i-1])
	}
}

func (s *MemoryStore) notifyLocked(changed []string) {
	for sub := range s.subs {
		if related(sub.segs, changed) {
			sub.push(s.snapshotLocked(sub))
		}
	}
}

func (s *MemoryStore) snapshotLocked(sub *Subscription) Snapshot {
	value := s.getLocked(sub.segs)
	if obj, ok := value.(map[string]any); ok && sub.limit > 0 && len(obj) > sub.limit {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		window := make(map[string]any, sub.limit)
		for _, k := range keys[len(keys)-sub.limit:] {
			window[k] = obj[k]
		}
		value = window
	}
	return Snapshot{Path: sub.path, Value: clone(value)}
}

// normalize converts an arbitrary Go value into its JSON tree form. Empty
// objects collapse to nil.
func normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("realtime: value is not JSON encodable: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("realtime: value is not JSON encodable: %w", err)
	}
	return prune(out), nil
}

func prune(v any) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, child := range obj {
		if child = prune(child); child == nil {
			delete(obj, k)
		} else {
			obj[k] = child
		}
	}
	if len(obj) == 0 {
		return nil
	}
	return obj
}

func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = clone(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = clone(child)
		}
		return out
	}
	return v
}
