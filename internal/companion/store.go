package companion

import (
	"strings"
	"sync"

	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
)

// UpdateKind names what changed in a Store.
type UpdateKind int

const (
	UpdateMessage UpdateKind = iota + 1
	UpdateLoading
	UpdateInput
	UpdateInterim
	UpdateListening
)

// Update is delivered to Store subscribers after each mutation.
type Update struct {
	Kind      UpdateKind
	Message   chat.Message
	Loading   bool
	Input     string
	Interim   string
	Listening bool
}

// Store holds the conversation state of one companion session. All accessors
// return copies; subscribers run on the mutating goroutine after the lock is
// released.
type Store struct {
	mu         sync.RWMutex
	history    []chat.Message
	last       chat.Message
	hasLast    bool
	input      string
	interim    string
	listening  bool
	loading    bool
	generation uint64

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Update)
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{subs: make(map[int]func(Update))}
}

// Subscribe registers fn for future updates and returns a function that
// removes it.
func (s *Store) Subscribe(fn func(Update)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) publish(updates ...Update) {
	s.subMu.Lock()
	fns := make([]func(Update), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, u := range updates {
		for _, fn := range fns {
			fn(u)
		}
	}
}

// History returns a copy of the conversation so far.
func (s *Store) History() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return chat.CopyHistory(s.history)
}

// Len returns the number of messages in the conversation.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// LastMessage returns the most recent assistant message.
func (s *Store) LastMessage() (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.hasLast
}

// Loading reports whether a chat reply is pending.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Input returns the pending input buffer.
func (s *Store) Input() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.input
}

// SetInput replaces the input buffer.
func (s *Store) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
	s.publish(Update{Kind: UpdateInput, Input: text})
}

// AppendInput appends dictated text to the input buffer, separated by a space.
func (s *Store) AppendInput(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.input != "" && !strings.HasSuffix(s.input, " ") {
		s.input += " "
	}
	s.input += text
	input := s.input
	s.mu.Unlock()
	s.publish(Update{Kind: UpdateInput, Input: input})
}

// SetInterim stores the latest unconfirmed dictation transcript.
func (s *Store) SetInterim(text string) {
	s.mu.Lock()
	if s.interim == text {
		s.mu.Unlock()
		return
	}
	s.interim = text
	s.mu.Unlock()
	s.publish(Update{Kind: UpdateInterim, Interim: text})
}

// SetListening records whether dictation is running.
func (s *Store) SetListening(on bool) {
	s.mu.Lock()
	if s.listening == on {
		s.mu.Unlock()
		return
	}
	s.listening = on
	s.mu.Unlock()
	s.publish(Update{Kind: UpdateListening, Listening: on})
}

// BeginSubmission accepts raw as a user message if no reply is pending. In one
// step it appends the message, clears the input buffer, raises the loading
// flag and starts a new generation. It returns the generation and the updated
// history to send.
func (s *Store) BeginSubmission(raw string) (uint64, []chat.Message, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil, ErrEmptyInput
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return 0, nil, ErrBusy
	}
	msg := chat.UserMessage(raw)
	s.history = append(s.history, msg)
	s.input = ""
	s.loading = true
	s.generation++
	gen := s.generation
	history := chat.CopyHistory(s.history)
	s.mu.Unlock()

	s.publish(
		Update{Kind: UpdateMessage, Message: msg},
		Update{Kind: UpdateInput},
		Update{Kind: UpdateLoading, Loading: true},
	)
	return gen, history, nil
}

// CompleteSubmission records the assistant reply of generation gen and lowers
// the loading flag. A reply for an older generation is discarded.
func (s *Store) CompleteSubmission(gen uint64, reply chat.Message) error {
	s.mu.Lock()
	if gen != s.generation || !s.loading {
		s.mu.Unlock()
		return ErrStaleReply
	}
	s.history = append(s.history, reply)
	s.last = reply
	s.hasLast = true
	s.loading = false
	s.mu.Unlock()

	s.publish(
		Update{Kind: UpdateLoading, Loading: false},
		Update{Kind: UpdateMessage, Message: reply},
	)
	return nil
}

// FailSubmission lowers the loading flag for generation gen. The user message
// stays in the history.
func (s *Store) FailSubmission(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || !s.loading {
		s.mu.Unlock()
		return
	}
	s.loading = false
	s.mu.Unlock()

	s.publish(Update{Kind: UpdateLoading, Loading: false})
}

// Invalidate supersedes any pending submission so its reply is discarded.
func (s *Store) Invalidate() {
	s.mu.Lock()
	wasLoading := s.loading
	s.generation++
	s.loading = false
	s.mu.Unlock()

	if wasLoading {
		s.publish(Update{Kind: UpdateLoading, Loading: false})
	}
}
