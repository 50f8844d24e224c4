// Package client talks to the companion backend over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zhouzirui/yui-companion/backend/internal/analysis/emotion"
	"github.com/zhouzirui/yui-companion/backend/internal/companion"
	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
)

const defaultTimeout = 45 * time.Second

// errorBody mirrors the backend's error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (b errorBody) message() string {
	switch {
	case b.Error != "" && b.Details != "":
		return b.Error + " (" + b.Details + ")"
	case b.Error != "":
		return b.Error
	default:
		return b.Details
	}
}

// ChatClient implements companion.ChatClient against POST /api/chat.
type ChatClient struct {
	endpoint string
	http     *http.Client
}

// NewChatClient creates a client for the backend at baseURL. A nil
// httpClient uses a client with a default timeout.
func NewChatClient(baseURL string, httpClient *http.Client) *ChatClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &ChatClient{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/chat",
		http:     httpClient,
	}
}

// Send posts the whole history and returns the assistant reply.
func (c *ChatClient) Send(ctx context.Context, history []chat.Message, username string) (chat.Message, error) {
	const op = "chat"

	payload, err := json.Marshal(chat.CompletionRequest{Messages: history, Username: username})
	if err != nil {
		return chat.Message{}, &companion.TransportError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return chat.Message{}, &companion.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return chat.Message{}, &companion.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return chat.Message{}, &companion.TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		if jsonErr := json.Unmarshal(body, &eb); jsonErr != nil || eb.message() == "" {
			eb.Error = strings.TrimSpace(string(body))
		}
		return chat.Message{}, &companion.TransportError{Op: op, Status: resp.StatusCode, Message: eb.message()}
	}

	var reply chat.Message
	if err := json.Unmarshal(body, &reply); err != nil {
		return chat.Message{}, &companion.TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode reply: %w", err)}
	}

	// a tag left in the content wins over the server label
	label, content := emotion.ParseTag(reply.Content)
	if label == emotion.Neutral && content == reply.Content && reply.Emotion.Valid() {
		label = reply.Emotion
	}
	return chat.AssistantMessage(content, label), nil
}
