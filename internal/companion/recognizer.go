package companion

import "context"

// Transcript is one result from a speech recognizer.
type Transcript struct {
	Text  string
	Final bool
}

// Recognizer is an optional dictation capability. Start returns a channel of
// interim and final transcripts that is closed when recognition ends.
type Recognizer interface {
	Start(ctx context.Context) (<-chan Transcript, error)
	Stop() error
}
