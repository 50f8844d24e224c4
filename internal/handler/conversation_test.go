package handler

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/yui-companion/backend/internal/analysis/emotion"
	"github.com/zhouzirui/yui-companion/backend/internal/client"
	"github.com/zhouzirui/yui-companion/backend/internal/companion"
	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
	personaModel "github.com/zhouzirui/yui-companion/backend/internal/model/persona"
	chatService "github.com/zhouzirui/yui-companion/backend/internal/service/chat"
)

type scriptedReplier struct {
	mu      sync.Mutex
	replies []chat.Message
	calls   int
}

func (r *scriptedReplier) Reply(ctx context.Context, history []chat.Message, username string) (chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reply := r.replies[r.calls%len(r.replies)]
	r.calls++
	return reply, nil
}

type mutedSynth struct{}

func (mutedSynth) Synthesize(ctx context.Context, sentence string) (companion.Segment, error) {
	return companion.Segment{}, errors.New("speech disabled")
}

type unusedOutput struct{}

func (unusedOutput) Start(ctx context.Context, seg companion.Segment) (companion.Source, error) {
	return nil, errors.New("no output")
}

func TestConversationSurvivesBlankReply(t *testing.T) {
	replier := &scriptedReplier{replies: []chat.Message{
		chat.AssistantMessage("", emotion.Happy),
		chat.AssistantMessage("Hello again.", emotion.Joy),
	}}
	srv := httptest.NewServer(NewRouter(Deps{
		Personas:       personaModel.NewMemoryStore(personaModel.Seed()),
		Sessions:       chatService.NewService(),
		AI:             replier,
		DefaultPersona: "yui",
		Logger:         zerolog.Nop(),
	}))
	defer srv.Close()

	var alerts []error
	controller := companion.NewController(companion.Config{
		Chat:     client.NewChatClient(srv.URL, srv.Client()),
		Synth:    mutedSynth{},
		Output:   unusedOutput{},
		Notifier: companion.NotifierFunc(func(err error) { alerts = append(alerts, err) }),
		Logger:   zerolog.Nop(),
	})
	defer controller.Close()

	require.NoError(t, controller.Submit(context.Background(), "Hi"))
	require.NoError(t, controller.Submit(context.Background(), "Still there?"))

	assert.Empty(t, alerts)
	assert.Equal(t, 2, replier.calls)
	last, ok := controller.Store().LastMessage()
	require.True(t, ok)
	assert.Equal(t, "Hello again.", last.Content)
	assert.Len(t, controller.Store().History(), 4)
}
