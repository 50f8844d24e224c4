package companion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/yui-companion/backend/internal/analysis/emotion"
	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
)

// fakeOutput records every started segment and tracks how many sources are
// active at once.
type fakeOutput struct {
	mu        sync.Mutex
	started   []Segment
	active    int
	maxActive int
	hold      bool
	playFor   time.Duration
	fail      map[int]bool
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{playFor: 2 * time.Millisecond, fail: map[int]bool{}}
}

func (o *fakeOutput) Start(_ context.Context, seg Segment) (Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail[seg.Index] {
		return nil, errors.New("output unavailable")
	}
	o.started = append(o.started, seg)
	o.active++
	if o.active > o.maxActive {
		o.maxActive = o.active
	}

	src := &fakeSource{out: o, done: make(chan struct{})}
	if !o.hold {
		d := o.playFor
		go func() {
			time.Sleep(d)
			src.finish()
		}()
	}
	return src, nil
}

func (o *fakeOutput) startedIndexes() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	idx := make([]int, 0, len(o.started))
	for _, seg := range o.started {
		idx = append(idx, seg.Index)
	}
	return idx
}

func (o *fakeOutput) startedTexts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	texts := make([]string, 0, len(o.started))
	for _, seg := range o.started {
		texts = append(texts, seg.Text)
	}
	return texts
}

func (o *fakeOutput) counts() (active, maxActive int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active, o.maxActive
}

type fakeSource struct {
	out      *fakeOutput
	done     chan struct{}
	doneOnce sync.Once
	stopOnce sync.Once
}

func (s *fakeSource) Done() <-chan struct{} { return s.done }

func (s *fakeSource) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *fakeSource) Stop() {
	s.stopOnce.Do(func() {
		s.out.mu.Lock()
		s.out.active--
		s.out.mu.Unlock()
	})
	s.finish()
}

// fakeChat answers with a fixed reply and records every request.
type fakeChat struct {
	mu       sync.Mutex
	reply    string
	err      error
	gate     chan struct{}
	calls    int
	lastSent []chat.Message
	username string
}

func (c *fakeChat) Send(ctx context.Context, history []chat.Message, username string) (chat.Message, error) {
	c.mu.Lock()
	c.calls++
	c.lastSent = chat.CopyHistory(history)
	c.username = username
	gate := c.gate
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return chat.Message{}, ctx.Err()
		}
	}
	if c.err != nil {
		return chat.Message{}, c.err
	}
	label, content := emotion.ParseTag(c.reply)
	return chat.AssistantMessage(content, label), nil
}

func (c *fakeChat) sent() ([]chat.Message, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return chat.CopyHistory(c.lastSent), c.calls
}

// fakeSynth synthesizes each sentence after a per-sentence delay and fails
// the sentences listed in fail.
type fakeSynth struct {
	mu     sync.Mutex
	delay  map[string]time.Duration
	fail   map[string]error
	calls  []string
	active int
	peak   int
}

func (s *fakeSynth) Synthesize(ctx context.Context, sentence string) (Segment, error) {
	s.mu.Lock()
	s.calls = append(s.calls, sentence)
	s.active++
	if s.active > s.peak {
		s.peak = s.active
	}
	delay := s.delay[sentence]
	err := s.fail[sentence]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Segment{}, ctx.Err()
		}
	}
	if err != nil {
		return Segment{}, err
	}
	return Segment{
		Audio:    []byte(strings.ToUpper(sentence)),
		Format:   "mp3",
		Duration: time.Millisecond,
	}, nil
}

func (s *fakeSynth) peakConcurrency() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

type recordingNotifier struct {
	mu   sync.Mutex
	errs []error
}

func (n *recordingNotifier) Alert(err error) {
	n.mu.Lock()
	n.errs = append(n.errs, err)
	n.mu.Unlock()
}

func (n *recordingNotifier) alerts() []error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]error(nil), n.errs...)
}
