package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/yui-companion/backend/internal/analysis/emotion"
	"github.com/zhouzirui/yui-companion/backend/internal/config"
	"github.com/zhouzirui/yui-companion/backend/internal/metrics"
	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
	"github.com/zhouzirui/yui-companion/backend/internal/model/persona"
)

var (
	// ErrNotConfigured is returned when no model provider is available.
	ErrNotConfigured = errors.New("ai service is not configured")
	// ErrEmptyHistory is returned when there is nothing to reply to.
	ErrEmptyHistory = errors.New("conversation history is empty")
)

// Generator streams a completion for the conversation and returns the
// buffered text.
type Generator interface {
	Generate(ctx context.Context, system string, history []chat.Message) (string, error)
}

// Service encapsulates AI-powered chat functionality.
type Service struct {
	gen     Generator
	persona persona.Persona
	prompts *PersonaPromptManager
	cfg     config.AIConfig
	logger  zerolog.Logger
}

// NewService creates a service backed by the provider named in cfg.
func NewService(ctx context.Context, cfg config.AIConfig, p persona.Persona, logger zerolog.Logger) (*Service, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	var (
		gen Generator
		err error
	)
	switch cfg.Provider {
	case config.ProviderArk:
		gen, err = newArkGenerator(ctx, cfg)
	case config.ProviderOpenAI:
		gen = newOpenAIGenerator(cfg)
	default:
		err = fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return NewServiceWithGenerator(gen, cfg, p, logger), nil
}

// NewServiceWithGenerator creates a service around an existing generator.
func NewServiceWithGenerator(gen Generator, cfg config.AIConfig, p persona.Persona, logger zerolog.Logger) *Service {
	return &Service{
		gen:     gen,
		persona: p,
		prompts: NewPersonaPromptManager(),
		cfg:     cfg,
		logger:  logger.With().Str("component", "ai").Logger(),
	}
}

// Persona returns the persona the service speaks as.
func (s *Service) Persona() persona.Persona {
	return s.persona
}

// Reply generates the assistant's next message for history, bounded by the
// configured generation timeout. The leading emotion tag is parsed out of the
// reply.
func (s *Service) Reply(ctx context.Context, history []chat.Message, username string) (chat.Message, error) {
	if s == nil || s.gen == nil {
		return chat.Message{}, ErrNotConfigured
	}
	if len(history) == 0 {
		return chat.Message{}, ErrEmptyHistory
	}

	if s.cfg.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.GenerationTimeout)
		defer cancel()
	}

	start := time.Now()
	system := s.prompts.BuildSystemPrompt(s.persona, username)
	text, err := s.gen.Generate(ctx, system, s.buildHistory(history))
	metrics.ChatLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return chat.Message{}, fmt.Errorf("failed to generate reply: %w", err)
	}

	label, content := emotion.ParseTag(strings.TrimSpace(text))
	s.logger.Info().
		Str("persona", s.persona.ID).
		Str("emotion", string(label)).
		Int("length", len(content)).
		Dur("elapsed", time.Since(start)).
		Msg("generated reply")

	return chat.AssistantMessage(content, label), nil
}

// buildHistory keeps the most recent messages and restores emotion tags on
// assistant turns so the model keeps the convention. Blank assistant turns
// are dropped.
func (s *Service) buildHistory(messages []chat.Message) []chat.Message {
	limit := s.cfg.HistoryLimit
	if limit <= 0 {
		limit = 20
	}

	start := 0
	if len(messages) > limit {
		start = len(messages) - limit
	}

	history := make([]chat.Message, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		if msg.Role == chat.RoleAssistant && strings.TrimSpace(msg.Content) == "" {
			continue
		}
		if msg.Role == chat.RoleAssistant {
			msg.Content = emotion.Prefix(msg.Emotion, msg.Content)
		}
		msg.Emotion = ""
		history = append(history, msg)
	}
	return history
}
