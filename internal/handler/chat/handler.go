package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/yui-companion/backend/internal/metrics"
	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
	aiService "github.com/zhouzirui/yui-companion/backend/internal/service/ai"
	"github.com/zhouzirui/yui-companion/backend/pkg/utils"
)

const (
	errInvalidRequest = "Invalid request"
	errProcessing     = "An error occurred while processing your request."
	errUnavailable    = "chat service unavailable"
)

// Replier 生成助手回复
type Replier interface {
	Reply(ctx context.Context, history []chat.Message, username string) (chat.Message, error)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	ai     Replier
	logger zerolog.Logger
}

// New 创建聊天处理器，ai 为 nil 时接口返回 503
func New(ai Replier, logger zerolog.Logger) *Handler {
	return &Handler{
		ai:     ai,
		logger: logger.With().Str("component", "chat-handler").Logger(),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

// handleChat 根据完整对话历史生成下一条回复
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chat.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		metrics.ChatRequests.WithLabelValues(metrics.OutcomeInvalid).Inc()
		utils.RespondErrorDetails(w, http.StatusBadRequest, errInvalidRequest, "invalid request body")
		return
	}

	if err := validateHistory(payload.Messages); err != nil {
		metrics.ChatRequests.WithLabelValues(metrics.OutcomeInvalid).Inc()
		utils.RespondErrorDetails(w, http.StatusBadRequest, errInvalidRequest, err.Error())
		return
	}

	if isNil(h.ai) {
		metrics.ChatRequests.WithLabelValues(metrics.OutcomeError).Inc()
		utils.RespondError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}

	reply, err := h.ai.Reply(r.Context(), payload.Messages, strings.TrimSpace(payload.Username))
	if err != nil {
		metrics.ChatRequests.WithLabelValues(metrics.OutcomeError).Inc()
		if errors.Is(err, aiService.ErrNotConfigured) {
			utils.RespondError(w, http.StatusServiceUnavailable, errUnavailable)
			return
		}
		h.logger.Error().Err(err).Int("history", len(payload.Messages)).Msg("chat completion failed")
		utils.RespondErrorDetails(w, http.StatusInternalServerError, errProcessing, err.Error())
		return
	}

	metrics.ChatRequests.WithLabelValues(metrics.OutcomeOK).Inc()
	utils.RespondJSON(w, http.StatusOK, reply)
}

// validateHistory 校验对话历史：非空、角色合法、用户消息内容非空且最后一条来自用户。
// 助手消息允许为空，模型可能只返回表情标签。
func validateHistory(messages []chat.Message) error {
	if len(messages) == 0 {
		return errors.New("messages must not be empty")
	}
	for i, msg := range messages {
		if !msg.Role.Valid() {
			return fmt.Errorf("messages[%d]: unknown role %q", i, msg.Role)
		}
		if msg.Role == chat.RoleUser && strings.TrimSpace(msg.Content) == "" {
			return fmt.Errorf("messages[%d]: content is required", i)
		}
	}
	if messages[len(messages)-1].Role != chat.RoleUser {
		return errors.New("last message must come from the user")
	}
	return nil
}

func isNil(r Replier) bool {
	if r == nil {
		return true
	}
	svc, ok := r.(*aiService.Service)
	return ok && svc == nil
}
