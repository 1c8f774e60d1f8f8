package realtime

import "sync"

// Subscription delivers snapshots of one path in commit order. Pending
// snapshots queue without bound, so a slow reader never stalls writers and
// never misses a change. Cancel is idempotent and closes Updates.
type Subscription struct {
	path  string
	segs  []string
	limit int

	out  chan Snapshot
	wake chan struct{}
	done chan struct{}

	mu    sync.Mutex
	queue []Snapshot

	once     sync.Once
	onCancel func()
}

func newSubscription(path string, segs []string, limit int, onCancel func()) *Subscription {
	s := &Subscription{
		path:     path,
		segs:     segs,
		limit:    limit,
		out:      make(chan Snapshot),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		onCancel: onCancel,
	}
	go s.pump()
	return s
}

func (s *Subscription) Path() string { return s.path }

// Updates returns the snapshot stream. It is closed after Cancel.
func (s *Subscription) Updates() <-chan Snapshot { return s.out }

// Done is closed once the subscription is cancelled.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		if s.onCancel != nil {
			s.onCancel()
		}
	})
}

func (s *Subscription) push(snap Snapshot) {
	select {
	case <-s.done:
		return
	default:
	}

	s.mu.Lock()
	s.queue = append(s.queue, snap)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = Snapshot{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}
