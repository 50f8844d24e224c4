package chat

// CompletionRequest is the body of a chat completion call.
type CompletionRequest struct {
	Messages []Message `json:"messages"`
	Username string    `json:"username,omitempty"`
}
