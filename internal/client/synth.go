package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/zhouzirui/yui-companion/backend/internal/companion"
	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
	"github.com/zhouzirui/yui-companion/backend/internal/model/speech"
)

// SynthClient implements companion.Synthesizer against POST /api/synthesize.
type SynthClient struct {
	endpoint string
	http     *http.Client
	decoder  Decoder
}

// NewSynthClient creates a synthesis client. Nil arguments get defaults.
func NewSynthClient(baseURL string, httpClient *http.Client, decoder Decoder) *SynthClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if decoder == nil {
		decoder = MP3Decoder{}
	}
	return &SynthClient{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/synthesize",
		http:     httpClient,
		decoder:  decoder,
	}
}

// Synthesize fetches and decodes the audio for one sentence.
func (c *SynthClient) Synthesize(ctx context.Context, sentence string) (companion.Segment, error) {
	const op = "synthesize"

	payload, err := json.Marshal(speech.SynthesizeRequest{
		Message: chat.Message{Role: chat.RoleAssistant, Content: sentence},
	})
	if err != nil {
		return companion.Segment{}, &companion.TransportError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return companion.Segment{}, &companion.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.http.Do(req)
	if err != nil {
		return companion.Segment{}, &companion.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var eb errorBody
		if jsonErr := json.Unmarshal(body, &eb); jsonErr != nil || eb.message() == "" {
			eb.Error = strings.TrimSpace(string(body))
		}
		var cause error
		if msg := eb.message(); msg != "" {
			cause = errors.New(msg)
		}
		return companion.Segment{}, &companion.SynthesisError{Status: resp.StatusCode, Err: cause}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return companion.Segment{}, &companion.TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}

	format, duration, err := c.decoder.Decode(audio)
	if err != nil {
		return companion.Segment{}, err
	}

	return companion.Segment{
		Text:     sentence,
		Audio:    audio,
		Format:   format,
		Duration: duration,
	}, nil
}
