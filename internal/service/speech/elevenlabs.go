package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/yui-companion/backend/internal/config"
	"github.com/zhouzirui/yui-companion/backend/internal/model/speech"
)

const (
	defaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	audioContentType         = "audio/mpeg"
)

// ProviderError is a non-2xx answer from the TTS provider.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("ElevenLabs API error %d: %s", e.Status, e.Body)
}

// ElevenLabs synthesizes speech through the ElevenLabs text-to-speech API.
type ElevenLabs struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewElevenLabs creates a client from the speech configuration.
func NewElevenLabs(cfg config.SpeechConfig, logger zerolog.Logger) *ElevenLabs {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultElevenLabsBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ElevenLabs{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("provider", "elevenlabs").Logger(),
	}
}

// Name identifies the provider.
func (p *ElevenLabs) Name() string {
	return "elevenlabs"
}

// Available reports whether an API key is set.
func (p *ElevenLabs) Available() bool {
	return p.apiKey != ""
}

// Synthesize returns the MP3 bytes for req.
func (p *ElevenLabs) Synthesize(ctx context.Context, req speech.TTSRequest) (*speech.TTSResponse, error) {
	if !p.Available() {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", p.baseURL, url.PathEscape(req.VoiceID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Accept", audioContentType)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ProviderError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	requestID := resp.Header.Get("request-id")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	p.logger.Debug().
		Str("voice", req.VoiceID).
		Int("audioBytes", len(audio)).
		Dur("elapsed", time.Since(start)).
		Msg("synthesis complete")

	return &speech.TTSResponse{
		AudioData:   audio,
		ContentType: audioContentType,
		Format:      "mp3",
		VoiceID:     req.VoiceID,
		RequestID:   requestID,
		CreatedAt:   time.Now(),
	}, nil
}
