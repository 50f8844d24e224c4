// Package companion implements the client side of a companion session: the
// conversation store, the submission controller, ordered speech synthesis and
// sequential audio playback, and the avatar animation boundary.
package companion

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/yui-companion/backend/internal/analysis/emotion"
	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
)

// Config wires a Controller to its collaborators. Chat, Synth and Output are
// required.
type Config struct {
	Chat          ChatClient
	Synth         Synthesizer
	Output        Output
	Store         *Store
	Notifier      Notifier
	Recognizer    Recognizer
	Username      string
	PipelineWidth int
	Logger        zerolog.Logger
}

type speechJob struct {
	requestID string
	sentences []string
}

// Controller runs submissions: it records the user message, awaits the chat
// reply, and speaks the reply sentence by sentence.
type Controller struct {
	chat       ChatClient
	synth      Synthesizer
	store      *Store
	queue      *Queue
	notifier   Notifier
	recognizer Recognizer
	username   string
	width      int
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan speechJob
	wg     sync.WaitGroup

	mu            sync.Mutex
	phase         Phase
	speaking      int
	closed        bool
	phaseWatchers []func(Phase)

	listenMu     sync.Mutex
	listening    bool
	listenID     int
	listenCancel context.CancelFunc
}

// NewController starts a controller and its playback queue.
func NewController(cfg Config) *Controller {
	store := cfg.Store
	if store == nil {
		store = NewStore()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NotifierFunc(func(error) {})
	}
	width := cfg.PipelineWidth
	if width <= 0 {
		width = DefaultPipelineWidth
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		chat:       cfg.Chat,
		synth:      cfg.Synth,
		store:      store,
		queue:      NewQueue(cfg.Output, cfg.Logger),
		notifier:   notifier,
		recognizer: cfg.Recognizer,
		username:   cfg.Username,
		width:      width,
		logger:     cfg.Logger.With().Str("component", "controller").Logger(),
		ctx:        ctx,
		cancel:     cancel,
		jobs:       make(chan speechJob, 16),
	}
	c.queue.OnStateChange(func(bool) { c.settle() })

	c.wg.Add(1)
	go c.speakLoop()
	return c
}

// Store returns the conversation store the controller writes to.
func (c *Controller) Store() *Store { return c.store }

// Queue returns the playback queue.
func (c *Controller) Queue() *Queue { return c.queue }

// Phase returns the current controller phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// OnPhaseChange registers fn for phase transitions. fn runs with the
// controller lock held and must not call back into the controller.
func (c *Controller) OnPhaseChange(fn func(Phase)) {
	c.mu.Lock()
	c.phaseWatchers = append(c.phaseWatchers, fn)
	c.mu.Unlock()
}

// Submit sends rawInput as the next user message. Blank input and input that
// arrives while a reply is pending are rejected without side effects. Chat
// failures are alerted and returned; the user message stays in the history.
// Speech for the reply continues in the background after Submit returns.
func (c *Controller) Submit(ctx context.Context, rawInput string) error {
	if c.isClosed() {
		return ErrClosed
	}

	gen, history, err := c.store.BeginSubmission(rawInput)
	if err != nil {
		return err
	}
	c.settle()

	requestID := uuid.NewString()
	logger := c.logger.With().Str("request_id", requestID).Uint64("generation", gen).Logger()
	logger.Debug().Int("history", len(history)).Msg("sending conversation")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	reply, err := c.chat.Send(ctx, history, c.username)
	if err != nil {
		c.store.FailSubmission(gen)
		c.settle()
		if c.ctx.Err() != nil {
			return ErrClosed
		}
		logger.Error().Err(err).Msg("chat request failed")
		c.notifier.Alert(err)
		return err
	}

	reply.Role = chat.RoleAssistant
	if !reply.Emotion.Valid() {
		reply.Emotion = emotion.Neutral
	}

	sentences := SplitSentences(reply.Content)
	if len(sentences) > 0 {
		c.mu.Lock()
		c.speaking++
		c.mu.Unlock()
	}

	if err := c.store.CompleteSubmission(gen, reply); err != nil {
		logger.Warn().Msg("discarding stale reply")
		if len(sentences) > 0 {
			c.finishSpeaking()
		}
		c.settle()
		return err
	}
	logger.Info().Str("emotion", string(reply.Emotion)).Int("sentences", len(sentences)).Msg("reply received")

	if len(sentences) == 0 {
		c.settle()
		return nil
	}
	c.settle()

	select {
	case c.jobs <- speechJob{requestID: requestID, sentences: sentences}:
		return nil
	case <-c.ctx.Done():
		c.finishSpeaking()
		return ErrClosed
	}
}

func (c *Controller) speakLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case job := <-c.jobs:
			c.speak(job)
			c.finishSpeaking()
		}
	}
}

func (c *Controller) speak(job speechJob) {
	logger := c.logger.With().Str("request_id", job.requestID).Logger()

	synthesizeOrdered(c.ctx, c.synth, job.sentences, c.width,
		func(seg Segment) {
			if err := c.queue.Enqueue(seg); err != nil {
				logger.Debug().Err(err).Int("index", seg.Index).Msg("segment not queued")
			}
		},
		func(index int, sentence string, err error) {
			var decodeErr *DecodeError
			event := logger.Warn()
			if errors.As(err, &decodeErr) || errors.Is(err, context.Canceled) {
				event = logger.Debug()
			}
			event.Err(err).Int("index", index).Int("chars", len(sentence)).Msg("dropping sentence")
		},
	)
}

func (c *Controller) finishSpeaking() {
	c.mu.Lock()
	if c.speaking > 0 {
		c.speaking--
	}
	c.mu.Unlock()
	c.settle()
}

// settle moves the phase to the one implied by the store, the pending speech
// jobs and the queue.
func (c *Controller) settle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := PhaseIdle
	switch {
	case c.closed:
	case c.store.Loading():
		target = PhaseAwaitingReply
	case c.speaking > 0:
		target = PhaseSynthesizing
	case c.queue.Playing():
		target = PhasePlaying
	}

	if target == c.phase {
		return
	}
	if !CanTransition(c.phase, target) {
		c.logger.Warn().Stringer("from", c.phase).Stringer("to", target).Msg("ignoring invalid phase transition")
		return
	}
	c.phase = target
	for _, fn := range c.phaseWatchers {
		fn(target)
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ToggleListening starts dictation, or stops it if it is running. It returns
// whether dictation is active afterwards. Final transcripts are appended to
// the input buffer; interim ones and the listening state are published as
// store updates.
func (c *Controller) ToggleListening() (bool, error) {
	if c.recognizer == nil {
		c.notifier.Alert(ErrRecognizerUnavailable)
		return false, ErrRecognizerUnavailable
	}
	if c.isClosed() {
		return false, ErrClosed
	}

	c.listenMu.Lock()
	defer c.listenMu.Unlock()

	if c.listening {
		return false, c.stopListeningLocked()
	}

	ctx, cancel := context.WithCancel(c.ctx)
	transcripts, err := c.recognizer.Start(ctx)
	if err != nil {
		cancel()
		c.notifier.Alert(err)
		return false, err
	}

	c.listenID++
	c.listening = true
	c.listenCancel = cancel
	c.store.SetListening(true)

	c.wg.Add(1)
	go c.consumeTranscripts(ctx, c.listenID, transcripts)
	return true, nil
}

func (c *Controller) stopListeningLocked() error {
	if !c.listening {
		return nil
	}
	c.listening = false
	c.listenCancel()
	c.store.SetInterim("")
	c.store.SetListening(false)
	return c.recognizer.Stop()
}

func (c *Controller) consumeTranscripts(ctx context.Context, id int, transcripts <-chan Transcript) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-transcripts:
			if !ok {
				c.listenMu.Lock()
				if c.listenID == id && c.listening {
					c.listening = false
					c.listenCancel()
					c.store.SetInterim("")
					c.store.SetListening(false)
				}
				c.listenMu.Unlock()
				return
			}
			if t.Final {
				c.store.AppendInput(t.Text)
				c.store.SetInterim("")
			} else {
				c.store.SetInterim(t.Text)
			}
		}
	}
}

// Close tears the session down: pending replies are discarded, in-flight
// synthesis is cancelled, playback stops and the queue is cleared.
// Submissions after Close return ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.recognizer != nil {
		c.listenMu.Lock()
		if err := c.stopListeningLocked(); err != nil {
			c.logger.Debug().Err(err).Msg("stop recognizer")
		}
		c.listenMu.Unlock()
	}

	c.store.Invalidate()
	c.cancel()
	c.queue.Close()
	c.wg.Wait()
	c.settle()
}
