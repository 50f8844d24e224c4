package ai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/yui-companion/backend/internal/config"
	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
)

// chainGenerator runs an eino chain: prompt template -> chat model, and
// buffers the streamed chunks into one message.
type chainGenerator struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

func newArkGenerator(ctx context.Context, cfg config.AIConfig) (*chainGenerator, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	return newChainGenerator(ctx, chatModel)
}

func newChainGenerator(ctx context.Context, chatModel model.ChatModel) (*chainGenerator, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	return &chainGenerator{chain: runnable}, nil
}

// Generate streams the chain output and concatenates the chunks. The last
// user message becomes the template query; earlier turns fill the history.
func (g *chainGenerator) Generate(ctx context.Context, system string, history []chat.Message) (string, error) {
	query := ""
	if n := len(history); n > 0 && history[n-1].Role == chat.RoleUser {
		query = history[n-1].Content
		history = history[:n-1]
	}

	input := map[string]any{
		"system":  system,
		"history": toSchemaMessages(history),
		"query":   query,
	}

	stream, err := g.chain.Stream(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	defer stream.Close()

	var chunks []*schema.Message
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", fmt.Errorf("ai stream recv failed: %w", recvErr)
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
	}

	if len(chunks) == 0 {
		return "", nil
	}

	merged, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", fmt.Errorf("concat ai chunks failed: %w", err)
	}
	return merged.Content, nil
}

func toSchemaMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}
