package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/yui-companion/backend/internal/analysis/emotion"
	"github.com/zhouzirui/yui-companion/backend/internal/config"
	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
	"github.com/zhouzirui/yui-companion/backend/internal/model/persona"
)

type stubGenerator struct {
	reply   string
	err     error
	wait    bool
	system  string
	history []chat.Message
}

func (g *stubGenerator) Generate(ctx context.Context, system string, history []chat.Message) (string, error) {
	g.system = system
	g.history = history
	if g.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.reply, g.err
}

func newTestService(gen Generator, cfg config.AIConfig) *Service {
	return NewServiceWithGenerator(gen, cfg, persona.Seed()[0], zerolog.Nop())
}

func TestReplyParsesEmotionTag(t *testing.T) {
	gen := &stubGenerator{reply: "  [Happy] Hello ototo-kun!  "}
	svc := newTestService(gen, config.AIConfig{})

	msg, err := svc.Reply(context.Background(), []chat.Message{chat.UserMessage("Hi")}, "")
	require.NoError(t, err)

	assert.Equal(t, chat.RoleAssistant, msg.Role)
	assert.Equal(t, emotion.Happy, msg.Emotion)
	assert.Equal(t, "Hello ototo-kun!", msg.Content)
}

func TestReplyWithoutTagIsNeutral(t *testing.T) {
	gen := &stubGenerator{reply: "Just text."}
	svc := newTestService(gen, config.AIConfig{})

	msg, err := svc.Reply(context.Background(), []chat.Message{chat.UserMessage("Hi")}, "")
	require.NoError(t, err)
	assert.Equal(t, emotion.Neutral, msg.Emotion)
	assert.Equal(t, "Just text.", msg.Content)
}

func TestReplyUsesUsernameInSystemPrompt(t *testing.T) {
	gen := &stubGenerator{reply: "[Joy] Hi."}
	svc := newTestService(gen, config.AIConfig{})

	_, err := svc.Reply(context.Background(), []chat.Message{chat.UserMessage("Hi")}, "Kazuto")
	require.NoError(t, err)
	assert.Contains(t, gen.system, "Kazuto")
	assert.Contains(t, gen.system, emotion.Happy.Tag())
}

func TestReplyRejectsEmptyHistory(t *testing.T) {
	svc := newTestService(&stubGenerator{}, config.AIConfig{})

	_, err := svc.Reply(context.Background(), nil, "")
	assert.ErrorIs(t, err, ErrEmptyHistory)
}

func TestReplyWithoutGenerator(t *testing.T) {
	var svc *Service
	_, err := svc.Reply(context.Background(), []chat.Message{chat.UserMessage("Hi")}, "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestReplyWrapsGeneratorError(t *testing.T) {
	boom := errors.New("upstream down")
	svc := newTestService(&stubGenerator{err: boom}, config.AIConfig{})

	_, err := svc.Reply(context.Background(), []chat.Message{chat.UserMessage("Hi")}, "")
	assert.ErrorIs(t, err, boom)
}

func TestReplyAppliesGenerationTimeout(t *testing.T) {
	svc := newTestService(&stubGenerator{wait: true}, config.AIConfig{GenerationTimeout: 20 * time.Millisecond})

	_, err := svc.Reply(context.Background(), []chat.Message{chat.UserMessage("Hi")}, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBuildHistoryLimitsAndRestoresTags(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	svc := newTestService(gen, config.AIConfig{HistoryLimit: 3})

	history := []chat.Message{
		chat.UserMessage("one"),
		chat.AssistantMessage("two", emotion.Sad),
		chat.UserMessage("three"),
		chat.AssistantMessage("four", emotion.Neutral),
		chat.UserMessage("five"),
	}
	_, err := svc.Reply(context.Background(), history, "")
	require.NoError(t, err)

	require.Len(t, gen.history, 3)
	assert.Equal(t, "three", gen.history[0].Content)
	assert.Equal(t, "four", gen.history[1].Content)
	assert.Equal(t, "five", gen.history[2].Content)

	_, err = svc.Reply(context.Background(), history[:3], "")
	require.NoError(t, err)
	assert.Equal(t, "[Sad] two", gen.history[1].Content)
	for _, msg := range gen.history {
		assert.Empty(t, msg.Emotion)
	}
}

func TestBuildHistoryDropsBlankAssistantTurns(t *testing.T) {
	gen := &stubGenerator{reply: "[Happy] Hello again."}
	svc := newTestService(gen, config.AIConfig{})

	history := []chat.Message{
		chat.UserMessage("Hi"),
		chat.AssistantMessage("", emotion.Sad),
		chat.UserMessage("Still there?"),
	}
	reply, err := svc.Reply(context.Background(), history, "")
	require.NoError(t, err)
	assert.Equal(t, "Hello again.", reply.Content)

	require.Len(t, gen.history, 2)
	assert.Equal(t, "Hi", gen.history[0].Content)
	assert.Equal(t, "Still there?", gen.history[1].Content)
}

func TestNewServiceRequiresProvider(t *testing.T) {
	_, err := NewService(context.Background(), config.AIConfig{Provider: config.ProviderOpenAI}, persona.Seed()[0], zerolog.Nop())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestBuildSystemPromptFallsBackForUnknownPersona(t *testing.T) {
	pm := NewPersonaPromptManager()
	prompt := pm.BuildSystemPrompt(persona.Persona{ID: "mio", Name: "Mio", Title: "Librarian"}, "")

	assert.True(t, strings.HasPrefix(prompt, "You're Mio, librarian."))
	assert.Contains(t, prompt, "the user")
}
