package companion

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Output is the single audio output path segments are played through.
type Output interface {
	// Start begins playing seg and returns its active source.
	Start(ctx context.Context, seg Segment) (Source, error)
}

// Source is one started playback. Stop releases it and must be safe to call
// more than once.
type Source interface {
	Done() <-chan struct{}
	Stop()
}

// Queue plays segments one at a time in enqueue order. A single consumer
// goroutine drains it; at most one Source is active at any time.
type Queue struct {
	out    Output
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	pending  []Segment
	playing  bool
	current  Source
	closed   bool
	watchers []func(playing bool)

	notifyMu sync.Mutex
	notified bool
}

// NewQueue starts a queue that plays through out.
func NewQueue(out Output, logger zerolog.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		out:    out,
		logger: logger.With().Str("component", "playback").Logger(),
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// OnStateChange registers fn to be called whenever the queue switches between
// idle and playing. fn must not call Enqueue or Close.
func (q *Queue) OnStateChange(fn func(playing bool)) {
	q.mu.Lock()
	q.watchers = append(q.watchers, fn)
	q.mu.Unlock()
}

// Enqueue appends seg and starts playback if the queue is idle.
func (q *Queue) Enqueue(seg Segment) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.pending = append(q.pending, seg)
	started := !q.playing
	q.playing = true
	q.mu.Unlock()

	if started {
		q.syncState()
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Playing reports whether a segment is being played or about to be.
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Len returns the number of segments waiting behind the current one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops the active source, drops pending segments and waits for the
// consumer to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.pending = nil
	current := q.current
	q.current = nil
	q.playing = false
	q.mu.Unlock()

	q.cancel()
	if current != nil {
		current.Stop()
	}
	<-q.done
	q.syncState()
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-q.wake:
		}

		for {
			seg, ok := q.next()
			if !ok {
				break
			}
			q.play(seg)
		}
	}
}

// next pops the head of the queue, or marks the queue idle when it is empty.
func (q *Queue) next() (Segment, bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Segment{}, false
	}
	if len(q.pending) == 0 {
		q.playing = false
		q.mu.Unlock()
		q.syncState()
		return Segment{}, false
	}
	seg := q.pending[0]
	q.pending[0] = Segment{}
	q.pending = q.pending[1:]
	q.mu.Unlock()
	return seg, true
}

func (q *Queue) play(seg Segment) {
	q.mu.Lock()
	prev := q.current
	q.current = nil
	q.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	src, err := q.out.Start(q.ctx, seg)
	if err != nil {
		q.logger.Warn().Err(err).Int("index", seg.Index).Msg("failed to start segment, skipping")
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		src.Stop()
		return
	}
	q.current = src
	q.mu.Unlock()

	q.logger.Debug().Int("index", seg.Index).Dur("duration", seg.Duration).Msg("segment started")

	select {
	case <-src.Done():
	case <-q.ctx.Done():
	}

	q.mu.Lock()
	if q.current == src {
		q.current = nil
	}
	q.mu.Unlock()
	src.Stop()
}

// syncState reports the current playing flag to watchers if it differs from
// the last reported value, so concurrent transitions are delivered in order.
func (q *Queue) syncState() {
	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()

	q.mu.Lock()
	playing := q.playing
	watchers := q.watchers
	q.mu.Unlock()

	if playing == q.notified {
		return
	}
	q.notified = playing
	for _, fn := range watchers {
		fn(playing)
	}
}
