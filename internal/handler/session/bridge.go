package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/yui-companion/backend/internal/analysis/emotion"
	"github.com/zhouzirui/yui-companion/backend/internal/client"
	"github.com/zhouzirui/yui-companion/backend/internal/companion"
	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
	chatService "github.com/zhouzirui/yui-companion/backend/internal/service/chat"
	speechsvc "github.com/zhouzirui/yui-companion/backend/internal/service/speech"
)

// the browser gets this long past the segment duration to report "ended"
const endedGrace = 2 * time.Second

// localChat answers in-process and records the exchange in the transcript.
type localChat struct {
	ai        Replier
	sessions  *chatService.Service
	sessionID string
	logger    zerolog.Logger
}

func (c *localChat) Send(ctx context.Context, history []chat.Message, username string) (chat.Message, error) {
	if n := len(history); n > 0 {
		c.record(ctx, history[n-1])
	}

	reply, err := c.ai.Reply(ctx, history, username)
	if err != nil {
		return chat.Message{}, &companion.TransportError{Op: "chat", Status: http.StatusInternalServerError, Err: err}
	}
	c.record(ctx, reply)
	return reply, nil
}

func (c *localChat) record(ctx context.Context, msg chat.Message) {
	if err := c.sessions.SaveMessage(ctx, c.sessionID, msg); err != nil {
		c.logger.Debug().Err(err).Msg("transcript not recorded")
	}
}

// localSynth synthesizes in-process and validates the audio like a remote
// client would.
type localSynth struct {
	speech  SpeechService
	decoder client.Decoder
}

func (s *localSynth) Synthesize(ctx context.Context, sentence string) (companion.Segment, error) {
	resp, err := s.speech.Synthesize(ctx, sentence)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, speechsvc.ErrEmptyText) {
			status = http.StatusBadRequest
		}
		return companion.Segment{}, &companion.SynthesisError{Status: status, Err: err}
	}

	format, duration, err := s.decoder.Decode(resp.AudioData)
	if err != nil {
		return companion.Segment{}, err
	}
	return companion.Segment{Text: sentence, Audio: resp.AudioData, Format: format, Duration: duration}, nil
}

// wsOutput plays a segment by shipping it to the browser and waiting for the
// matching "ended" message. Segment indexes restart with every reply, so each
// shipped segment also carries a per-connection sequence number.
type wsOutput struct {
	conn *wsConn

	mu      sync.Mutex
	seq     uint64
	current *wsSource
}

func (o *wsOutput) Start(ctx context.Context, seg companion.Segment) (companion.Source, error) {
	o.mu.Lock()
	o.seq++
	seq := o.seq
	o.mu.Unlock()

	index := seg.Index
	header := outgoingMessage{
		Type:   "segment",
		Index:  &index,
		Seq:    seq,
		Text:   seg.Text,
		Format: seg.Format,
		Bytes:  len(seg.Audio),
	}

	src := newWSSource(seq, index, seg.Duration+endedGrace)
	o.mu.Lock()
	o.current = src
	o.mu.Unlock()

	if err := o.conn.sendAudio(header, seg.Audio); err != nil {
		src.Stop()
		return nil, err
	}
	return src, nil
}

// Ended finishes the active segment. A non-zero seq must match the active
// segment's sequence; without one the index is compared.
func (o *wsOutput) Ended(seq uint64, index int) {
	o.mu.Lock()
	src := o.current
	o.mu.Unlock()
	if src == nil {
		return
	}
	if seq != 0 && src.seq != seq {
		return
	}
	if seq == 0 && src.index != index {
		return
	}
	src.Stop()
}

type wsSource struct {
	seq   uint64
	index int
	done  chan struct{}
	once  sync.Once
	timer *time.Timer
}

func newWSSource(seq uint64, index int, timeout time.Duration) *wsSource {
	src := &wsSource{seq: seq, index: index, done: make(chan struct{})}
	src.timer = time.AfterFunc(timeout, src.finish)
	return src
}

func (s *wsSource) Done() <-chan struct{} { return s.done }

// Stop ends the segment and cancels its timeout.
func (s *wsSource) Stop() {
	s.timer.Stop()
	s.finish()
}

func (s *wsSource) finish() {
	s.once.Do(func() { close(s.done) })
}

// wsDriver forwards avatar commands to the browser renderer.
type wsDriver struct {
	conn   *wsConn
	logger zerolog.Logger
}

func (d *wsDriver) SetMouthOpenness(value float64) {
	d.emit(outgoingMessage{Type: "mouth", Value: value})
}

func (d *wsDriver) SetExpression(label emotion.Label) {
	d.emit(outgoingMessage{Type: "expression", Emotion: label})
}

func (d *wsDriver) Focus(x, y float64) {
	d.emit(outgoingMessage{Type: "focus", X: &x, Y: &y})
}

func (d *wsDriver) Resize() {
	d.emit(outgoingMessage{Type: "resize"})
}

func (d *wsDriver) emit(msg outgoingMessage) {
	if err := d.conn.send(msg); err != nil {
		d.logger.Debug().Err(err).Str("type", msg.Type).Msg("avatar frame dropped")
	}
}
