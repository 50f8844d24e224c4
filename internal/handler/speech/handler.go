package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/yui-companion/backend/internal/model/speech"
	speechsvc "github.com/zhouzirui/yui-companion/backend/internal/service/speech"
	"github.com/zhouzirui/yui-companion/backend/pkg/utils"
)

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	Synthesize(ctx context.Context, text string) (*speech.TTSResponse, error)
	Health() speech.HealthResponse
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc SpeechService
	logger    zerolog.Logger
}

// New 创建语音处理器
func New(speechSvc SpeechService, logger zerolog.Logger) *Handler {
	return &Handler{
		speechSvc: speechSvc,
		logger:    logger.With().Str("component", "speech-handler").Logger(),
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/synthesize", h.handleSynthesize)
	r.Get("/speech/health", h.handleHealth)
}

// handleSynthesize 将一句助手回复转为音频并原样返回
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var payload speech.SynthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondErrorDetails(w, http.StatusBadRequest, "Invalid request", "invalid request body")
		return
	}

	resp, err := h.speechSvc.Synthesize(r.Context(), payload.Message.Content)
	if err != nil {
		switch {
		case errors.Is(err, speechsvc.ErrEmptyText):
			utils.RespondErrorDetails(w, http.StatusBadRequest, "Invalid request", "message content is required")
		case errors.Is(err, speechsvc.ErrNotConfigured):
			utils.RespondError(w, http.StatusServiceUnavailable, "speech service unavailable")
		default:
			h.logger.Error().Err(err).Msg("speech synthesis failed")
			utils.RespondErrorDetails(w, http.StatusBadGateway, "speech synthesis failed", err.Error())
		}
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.AudioData)))
	if resp.RequestID != "" {
		w.Header().Set("X-Synthesis-ID", resp.RequestID)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.AudioData); err != nil {
		h.logger.Warn().Err(err).Msg("failed to write audio response")
	}
}

// handleHealth 健康检查
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.speechSvc.Health()
	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	utils.RespondJSON(w, status, health)
}
