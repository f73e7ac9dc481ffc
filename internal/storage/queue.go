package storage

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ehallam/gmassist/internal/display"
)

// Default pacing for background saves. Rapid edits coalesce into one write
// per interval, matching the autosave debounce of the desktop app.
const defaultSaveInterval = 250 * time.Millisecond

// SaveQueue writes snapshots to a SnapshotStore from a single background
// worker so persistence never blocks the caller.
//
// Submissions coalesce: while a write is pending, a newer submission
// replaces it and only the newest state reaches disk. Each submission gets
// a monotonically increasing sequence id, and the store's discard rule
// guarantees an older write can never overtake a newer one.
type SaveQueue struct {
	store   SnapshotStore
	profile string
	limiter *rate.Limiter
	warn    func(error)

	mu      sync.Mutex
	seq     uint64
	pending *pendingSave

	wake   chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
}

type pendingSave struct {
	seq   uint64
	state display.State
}

// QueueOption configures a SaveQueue.
type QueueOption func(*SaveQueue)

// WithSaveInterval overrides the minimum interval between disk writes.
func WithSaveInterval(d time.Duration) QueueOption {
	return func(q *SaveQueue) {
		if d > 0 {
			q.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithWarn sets the callback invoked when a background save fails. Save
// failures are reported, never fatal.
func WithWarn(warn func(error)) QueueOption {
	return func(q *SaveQueue) {
		q.warn = warn
	}
}

// WithLastSeq seeds the sequence counter with the seq loaded from the
// store. Without it a restarted session would start below the previous
// session's seq and the store's discard rule would reject every save.
func WithLastSeq(seq uint64) QueueOption {
	return func(q *SaveQueue) {
		q.seq = seq
	}
}

// NewSaveQueue starts the background writer for the given profile.
func NewSaveQueue(store SnapshotStore, profile string, opts ...QueueOption) *SaveQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &SaveQueue{
		store:   store,
		profile: profile,
		limiter: rate.NewLimiter(rate.Every(defaultSaveInterval), 1),
		warn:    func(error) {},
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	go q.run(ctx)
	return q
}

// Submit schedules state for persistence and returns its sequence id. A
// submission that arrives before the previous one hit disk replaces it.
func (q *SaveQueue) Submit(state display.State) uint64 {
	q.mu.Lock()
	q.seq++
	seq := q.seq
	q.pending = &pendingSave{seq: seq, state: state.Clone()}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return seq
}

// Close stops the worker and synchronously flushes any pending snapshot.
func (q *SaveQueue) Close() error {
	q.cancel()
	<-q.done

	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	if pending == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.store.SaveSnapshot(ctx, q.profile, pending.seq, pending.state); err != nil {
		q.warn(err)
		return err
	}
	return nil
}

func (q *SaveQueue) run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}

		if err := q.limiter.Wait(ctx); err != nil {
			return
		}

		// Take the newest pending state; anything submitted while the
		// limiter was waiting wins over what triggered the wake.
		q.mu.Lock()
		pending := q.pending
		q.pending = nil
		q.mu.Unlock()
		if pending == nil {
			continue
		}

		if err := q.store.SaveSnapshot(ctx, q.profile, pending.seq, pending.state); err != nil {
			if ctx.Err() != nil {
				// Shutdown raced the save; hand the state back so Close
				// can flush it.
				q.mu.Lock()
				if q.pending == nil {
					q.pending = pending
				}
				q.mu.Unlock()
				return
			}
			q.warn(err)
		}
	}
}
