package main

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/yui-companion/backend/internal/companion"
	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
)

type scriptedChat struct {
	mu    sync.Mutex
	calls int
}

func (c *scriptedChat) Send(ctx context.Context, history []chat.Message, username string) (chat.Message, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return chat.AssistantMessage("Hello", ""), nil
}

type silentSynth struct{}

func (silentSynth) Synthesize(ctx context.Context, sentence string) (companion.Segment, error) {
	return companion.Segment{Text: sentence, Audio: []byte("a"), Format: "wav"}, nil
}

func mustFileOutput(t *testing.T) *FileOutput {
	t.Helper()
	out, err := NewFileOutput(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileOutput: %v", err)
	}
	return out
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
