package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/yui-companion/backend/internal/config"
	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
)

// openAIGenerator talks to any OpenAI-compatible chat completions API, such
// as Mistral's, and buffers the streamed deltas.
type openAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	topP        float32
}

func newOpenAIGenerator(cfg config.AIConfig) *openAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.OpenAIBaseURL, "/")
	}

	gen := &openAIGenerator{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.OpenAIModel,
		maxTokens: cfg.MaxTokens,
	}
	if cfg.Temperature != nil {
		gen.temperature = float32(*cfg.Temperature)
	}
	if cfg.TopP != nil {
		gen.topP = float32(*cfg.TopP)
	}
	return gen
}

func (g *openAIGenerator) Generate(ctx context.Context, system string, history []chat.Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Role == chat.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	stream, err := g.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		TopP:        g.topP,
		Stream:      true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to open completion stream: %w", err)
	}
	defer stream.Close()

	var text strings.Builder
	for {
		resp, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", fmt.Errorf("completion stream recv failed: %w", recvErr)
		}
		for _, choice := range resp.Choices {
			text.WriteString(choice.Delta.Content)
		}
	}
	return text.String(), nil
}
