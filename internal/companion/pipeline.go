package companion

import (
	"context"

	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
)

// DefaultPipelineWidth bounds how many sentences are synthesized at once.
const DefaultPipelineWidth = 5

// ChatClient sends the conversation to the chat endpoint and returns the
// assistant reply with its emotion tag already parsed.
type ChatClient interface {
	Send(ctx context.Context, history []chat.Message, username string) (chat.Message, error)
}

// Synthesizer turns one sentence into playable audio. Calls are independent.
type Synthesizer interface {
	Synthesize(ctx context.Context, sentence string) (Segment, error)
}

// Notifier surfaces failures the user has to see.
type Notifier interface {
	Alert(err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(err error)

func (f NotifierFunc) Alert(err error) { f(err) }

type synthResult struct {
	seg Segment
	err error
}

// synthesizeOrdered synthesizes sentences with at most width calls in flight
// and hands successful segments to emit strictly in sentence order. A failed
// sentence is reported to onFail and skipped.
func synthesizeOrdered(ctx context.Context, synth Synthesizer, sentences []string, width int,
	emit func(Segment), onFail func(index int, sentence string, err error)) {
	if width < 1 {
		width = 1
	}

	results := make([]chan synthResult, len(sentences))
	for i := range results {
		results[i] = make(chan synthResult, 1)
	}

	sem := make(chan struct{}, width)
	go func() {
		for i, sentence := range sentences {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			go func(i int, sentence string) {
				defer func() { <-sem }()
				seg, err := synth.Synthesize(ctx, sentence)
				results[i] <- synthResult{seg: seg, err: err}
			}(i, sentence)
		}
	}()

	for i, sentence := range sentences {
		var res synthResult
		select {
		case res = <-results[i]:
		case <-ctx.Done():
			return
		}
		if ctx.Err() != nil {
			return
		}
		if res.err != nil {
			onFail(i, sentence, res.err)
			continue
		}
		res.seg.Index = i
		res.seg.Text = sentence
		emit(res.seg)
	}
}
