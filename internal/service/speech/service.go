package speech

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/yui-companion/backend/internal/config"
	"github.com/zhouzirui/yui-companion/backend/internal/metrics"
	"github.com/zhouzirui/yui-companion/backend/internal/model/speech"
)

var (
	// ErrEmptyText 待合成文本为空
	ErrEmptyText = errors.New("text to synthesize is empty")
	// ErrNotConfigured 未配置语音合成服务
	ErrNotConfigured = errors.New("speech service is not configured")
)

// Provider 语音合成提供方
type Provider interface {
	Name() string
	Available() bool
	Synthesize(ctx context.Context, req speech.TTSRequest) (*speech.TTSResponse, error)
}

// Service 语音服务核心业务逻辑
type Service struct {
	provider Provider
	voiceID  string
	modelID  string
	settings speech.VoiceSettings
	logger   zerolog.Logger
}

// NewService 创建基于 ElevenLabs 的语音服务实例
func NewService(cfg config.SpeechConfig, logger zerolog.Logger) *Service {
	return NewServiceWithProvider(NewElevenLabs(cfg, logger), cfg, logger)
}

// NewServiceWithProvider 使用指定的提供方创建语音服务
func NewServiceWithProvider(provider Provider, cfg config.SpeechConfig, logger zerolog.Logger) *Service {
	return &Service{
		provider: provider,
		voiceID:  cfg.VoiceID,
		modelID:  cfg.ModelID,
		settings: speech.DefaultVoiceSettings(),
		logger:   logger.With().Str("component", "speech").Logger(),
	}
}

// WithVoice 返回使用另一音色的副本，空字符串保持原音色
func (s *Service) WithVoice(voiceID string) *Service {
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		return s
	}
	clone := *s
	clone.voiceID = voiceID
	return &clone
}

// Synthesize 文字转语音
func (s *Service) Synthesize(ctx context.Context, text string) (*speech.TTSResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		metrics.SynthRequests.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, ErrEmptyText
	}
	if s.provider == nil || !s.provider.Available() || s.voiceID == "" {
		metrics.SynthRequests.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, ErrNotConfigured
	}

	resp, err := s.provider.Synthesize(ctx, speech.TTSRequest{
		Text:     text,
		VoiceID:  s.voiceID,
		ModelID:  s.modelID,
		Settings: s.settings,
	})
	if err != nil {
		metrics.SynthRequests.WithLabelValues(metrics.OutcomeError).Inc()
		s.logger.Warn().Err(err).Int("length", len(text)).Msg("speech synthesis failed")
		return nil, err
	}

	metrics.SynthRequests.WithLabelValues(metrics.OutcomeOK).Inc()
	metrics.SynthBytes.Add(float64(len(resp.AudioData)))
	return resp, nil
}

// Health 返回语音服务状态
func (s *Service) Health() speech.HealthResponse {
	status := "ok"
	name := "none"
	if s.provider != nil {
		name = s.provider.Name()
	}
	if s.provider == nil || !s.provider.Available() || s.voiceID == "" {
		status = "unconfigured"
	}
	return speech.HealthResponse{
		Status:   status,
		Provider: name,
		VoiceID:  s.voiceID,
		Model:    s.modelID,
	}
}
