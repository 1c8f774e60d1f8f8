// Package realtime defines the contract of the backing realtime store the
// sync core runs against, and ships an in-process implementation of it.
//
// Values are JSON trees: objects are map[string]any, numbers float64. A
// subscription emits the full current value of its subtree on every change.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrInvalidPath    = errors.New("realtime: invalid path")
	ErrConflict       = errors.New("realtime: write conflict")
	ErrTooManyRetries = errors.New("realtime: transaction retry limit exceeded")
	ErrClosed         = errors.New("realtime: store closed")
)

// TransientError marks a store failure that may succeed when retried, such
// as a network error or a lost transaction race.
type TransientError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("realtime: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Temporary() bool { return true }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te) || errors.Is(err, ErrConflict)
}

// TransactFunc computes the next value of a cell from its current value.
// Returning an error aborts the transaction without writing.
type TransactFunc func(current any) (any, error)

type Store interface {
	// Append adds value as a new child of path under a fresh, time-ordered
	// key and returns that key.
	Append(ctx context.Context, path string, value any) (string, error)
	// Update writes the given fields below path, leaving other children alone.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Set replaces the value at path. A nil value deletes it.
	Set(ctx context.Context, path string, value any) error
	Get(ctx context.Context, path string) (Snapshot, error)
	// Subscribe emits the current value of path immediately and again after
	// every change at, above or below it. Emission order matches commit order.
	Subscribe(ctx context.Context, path string, opts ...SubscribeOption) (*Subscription, error)
	// Transact applies fn as a read-modify-write, retrying when another
	// writer changed the value between read and commit.
	Transact(ctx context.Context, path string, fn TransactFunc) (Snapshot, error)
}

// Pager is implemented by stores that can read a window of children.
type Pager interface {
	// Page returns at most limit children of path whose keys sort strictly
	// before beforeKey (all keys when beforeKey is empty), newest last.
	Page(ctx context.Context, path string, beforeKey string, limit int) ([]Child, error)
}

type subscribeOptions struct {
	limitToLast int
}

type SubscribeOption func(*subscribeOptions)

// LimitToLast restricts emitted object values to their n highest keys.
func LimitToLast(n int) SubscribeOption {
	return func(o *subscribeOptions) {
		o.limitToLast = n
	}
}

// Snapshot is the value of a path at one point in time.
type Snapshot struct {
	Path  string
	Value any
}

func (s Snapshot) Exists() bool {
	return s.Value != nil
}

// Decode unmarshals the snapshot value into v.
func (s Snapshot) Decode(v any) error {
	return decodeValue(s.Value, v)
}

// Children returns the object children of the snapshot sorted by key. It
// returns nil when the value is absent or not an object.
func (s Snapshot) Children() []Child {
	obj, ok := s.Value.(map[string]any)
	if !ok {
		return nil
	}
	children := make([]Child, 0, len(obj))
	for k, v := range obj {
		children = append(children, Child{Key: k, Value: v})
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Key < children[j].Key })
	return children
}

// Int returns the value as an integer, or 0 when it is absent or not a
// number.
func (s Snapshot) Int() int {
	return asInt(s.Value)
}

type Child struct {
	Key   string
	Value any
}

func (c Child) Decode(v any) error {
	return decodeValue(c.Value, v)
}

func decodeValue(value any, v any) error {
	if value == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot value: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode snapshot value: %w", err)
	}
	return nil
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}
