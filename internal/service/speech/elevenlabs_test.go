package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/yui-companion/backend/internal/config"
	"github.com/zhouzirui/yui-companion/backend/internal/model/speech"
)

func TestElevenLabsSynthesize(t *testing.T) {
	var (
		gotPath  string
		gotKey   string
		gotBody  map[string]any
		gotAccep string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		gotAccep = r.Header.Get("Accept")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	client := NewElevenLabs(config.SpeechConfig{APIKey: "secret", BaseURL: srv.URL + "/"}, zerolog.Nop())
	resp, err := client.Synthesize(context.Background(), speech.TTSRequest{
		Text:     "Hello.",
		VoiceID:  "voice-1",
		ModelID:  "eleven_multilingual_v2",
		Settings: speech.DefaultVoiceSettings(),
	})
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}

	if gotPath != "/v1/text-to-speech/voice-1" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotKey != "secret" {
		t.Fatalf("unexpected api key header: %q", gotKey)
	}
	if gotAccep != "audio/mpeg" {
		t.Fatalf("unexpected accept header: %q", gotAccep)
	}
	if gotBody["text"] != "Hello." || gotBody["model_id"] != "eleven_multilingual_v2" {
		t.Fatalf("unexpected body: %#v", gotBody)
	}
	settings, ok := gotBody["voice_settings"].(map[string]any)
	if !ok || settings["stability"] != 0.5 || settings["similarity_boost"] != 0.75 {
		t.Fatalf("unexpected voice settings: %#v", gotBody["voice_settings"])
	}
	if string(resp.AudioData) != "ID3audio" {
		t.Fatalf("unexpected audio: %q", resp.AudioData)
	}
	if resp.ContentType != "audio/mpeg" || resp.RequestID == "" {
		t.Fatalf("unexpected response metadata: %#v", resp)
	}
}

func TestElevenLabsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewElevenLabs(config.SpeechConfig{APIKey: "secret", BaseURL: srv.URL}, zerolog.Nop())
	_, err := client.Synthesize(context.Background(), speech.TTSRequest{Text: "Hi.", VoiceID: "v"})

	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if providerErr.Status != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: %d", providerErr.Status)
	}
}

func TestElevenLabsWithoutKey(t *testing.T) {
	client := NewElevenLabs(config.SpeechConfig{}, zerolog.Nop())
	if client.Available() {
		t.Fatal("expected client without key to be unavailable")
	}
	if _, err := client.Synthesize(context.Background(), speech.TTSRequest{Text: "Hi."}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
