package companion

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when a submission is blank after trimming.
	ErrEmptyInput = errors.New("input is empty")
	// ErrBusy is returned when a submission arrives while a reply is pending.
	ErrBusy = errors.New("a reply is already pending")
	// ErrClosed is returned once the session has been torn down.
	ErrClosed = errors.New("companion session closed")
	// ErrStaleReply marks a reply that belongs to a superseded submission.
	ErrStaleReply = errors.New("reply belongs to a superseded submission")
	// ErrRecognizerUnavailable is returned when dictation is not supported.
	ErrRecognizerUnavailable = errors.New("speech recognition is not supported")
)

// TransportError reports a failed or non-successful chat/TTS HTTP call.
type TransportError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": transport failure"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// SynthesisError reports a non-success status from the synthesis endpoint.
type SynthesisError struct {
	Status int
	Err    error
}

func (e *SynthesisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("synthesis failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("synthesis failed with status %d", e.Status)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// DecodeError reports audio bytes that could not be decoded for playback.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("decode audio: %v", e.Err)
	}
	return fmt.Sprintf("decode %s audio: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
