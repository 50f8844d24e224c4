package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/yui-companion/backend/internal/client"
	"github.com/zhouzirui/yui-companion/backend/internal/companion"
	"github.com/zhouzirui/yui-companion/backend/internal/metrics"
	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
	"github.com/zhouzirui/yui-companion/backend/internal/model/persona"
	"github.com/zhouzirui/yui-companion/backend/internal/model/speech"
	chatService "github.com/zhouzirui/yui-companion/backend/internal/service/chat"
	"github.com/zhouzirui/yui-companion/backend/pkg/utils"
)

const (
	defaultViewportWidth  = 1280
	defaultViewportHeight = 720
	mouthFrame            = 50 * time.Millisecond
)

// Replier 生成助手回复
type Replier interface {
	Reply(ctx context.Context, history []chat.Message, username string) (chat.Message, error)
}

// SpeechService 语音合成
type SpeechService interface {
	Synthesize(ctx context.Context, text string) (*speech.TTSResponse, error)
}

// Options 会话参数
type Options struct {
	DefaultPersona string
	PipelineWidth  int
}

// Handler 会话 WebSocket 处理器：在服务端运行完整的对话与语音管线
type Handler struct {
	ai       Replier
	speech   SpeechService
	sessions *chatService.Service
	personas persona.Store
	opts     Options
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// New 创建会话处理器
func New(ai Replier, speechSvc SpeechService, sessions *chatService.Service, personas persona.Store, opts Options, logger zerolog.Logger) *Handler {
	return &Handler{
		ai:       ai,
		speech:   speechSvc,
		sessions: sessions,
		personas: personas,
		opts:     opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.With().Str("component", "session").Logger(),
	}
}

// transcriptResponse 会话记录响应体
type transcriptResponse struct {
	Session chat.Session `json:"session"`
	Entries []chat.Entry `json:"entries"`
}

// RegisterRoutes 注册会话路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session/ws", h.handleWebSocket)
	r.Get("/session/{sessionID}/transcript", h.handleTranscript)
}

// handleTranscript 返回在线会话的对话记录，会话关闭后即不可查
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "session registry unavailable")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	sess, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	entries, err := h.sessions.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, transcriptResponse{Session: sess, Entries: entries})
}

// handleWebSocket 处理会话连接
// 查询参数：persona（角色 ID）、username（对用户的称呼）
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.ai == nil || h.speech == nil || h.sessions == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "session pipeline unavailable")
		return
	}

	personaID := strings.TrimSpace(r.URL.Query().Get("persona"))
	if personaID == "" {
		personaID = h.opts.DefaultPersona
	}
	p, ok := h.personas.FindByID(personaID)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "persona not found")
		return
	}
	username := strings.TrimSpace(r.URL.Query().Get("username"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := h.sessions.CreateSession(ctx, p.ID)
	if err != nil {
		h.logger.Error().Err(err).Msg("create session failed")
		return
	}
	logger := h.logger.With().Str("session", sess.ID).Logger()
	metrics.ActiveSessions.Set(float64(h.sessions.ActiveCount()))
	defer func() {
		if err := h.sessions.CloseSession(context.Background(), sess.ID); err != nil {
			logger.Debug().Err(err).Msg("close session failed")
		}
		metrics.ActiveSessions.Set(float64(h.sessions.ActiveCount()))
	}()

	logger.Info().Str("persona", p.ID).Msg("session connected")

	ws := &wsConn{conn: conn}
	h.runSession(ctx, ws, sess, username, logger)

	logger.Info().Msg("session closed")
}

func (h *Handler) runSession(ctx context.Context, ws *wsConn, sess chat.Session, username string, logger zerolog.Logger) {
	output := &wsOutput{conn: ws}
	driver := &wsDriver{conn: ws, logger: logger}

	controller := companion.NewController(companion.Config{
		Chat:   &localChat{ai: h.ai, sessions: h.sessions, sessionID: sess.ID, logger: logger},
		Synth:  &localSynth{speech: h.speech, decoder: client.MP3Decoder{}},
		Output: output,
		Notifier: companion.NotifierFunc(func(err error) {
			if sendErr := ws.send(outgoingMessage{Type: "error", Error: err.Error()}); sendErr != nil {
				logger.Debug().Err(sendErr).Msg("alert dropped")
			}
		}),
		Username:      username,
		PipelineWidth: h.opts.PipelineWidth,
		Logger:        logger,
	})
	defer controller.Close()

	unsubscribe := controller.Store().Subscribe(func(u companion.Update) {
		var msg outgoingMessage
		switch u.Kind {
		case companion.UpdateMessage:
			msg = outgoingMessage{Type: "message", Role: u.Message.Role, Content: u.Message.Content, Emotion: u.Message.Emotion}
		case companion.UpdateLoading:
			msg = outgoingMessage{Type: "loading", Value: u.Loading}
		case companion.UpdateInterim:
			msg = outgoingMessage{Type: "interim", Text: u.Interim}
		case companion.UpdateListening:
			msg = outgoingMessage{Type: "listening", Value: u.Listening}
		default:
			return
		}
		if err := ws.send(msg); err != nil {
			logger.Debug().Err(err).Str("type", msg.Type).Msg("store update dropped")
		}
	})
	defer unsubscribe()

	animator := companion.NewAnimator(driver, companion.AnimatorConfig{Frame: mouthFrame})
	defer animator.Close()
	detach := animator.Attach(controller.Store())
	defer detach()

	tracker := companion.NewFocusTracker(driver, defaultViewportWidth, defaultViewportHeight, companion.FocusConfig{Frame: mouthFrame})
	defer tracker.Close()

	_ = ws.send(outgoingMessage{Type: "session", SessionID: sess.ID})

	ws.conn.SetReadDeadline(time.Now().Add(pongWait))
	ws.conn.SetPongHandler(func(string) error {
		ws.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go h.pingLoop(ctx, ws)

	for {
		var msg inboundMessage
		if err := ws.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		ws.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case "submit":
			// Submit blocks until the reply arrives; keep reading so "ended" flows
			go func(text string) {
				err := controller.Submit(ctx, text)
				if err != nil && !errors.Is(err, companion.ErrBusy) && !errors.Is(err, companion.ErrEmptyInput) {
					logger.Debug().Err(err).Msg("submission finished with error")
				}
			}(msg.Text)
		case "ended":
			output.Ended(msg.Seq, msg.Index)
		case "focus":
			tracker.Pointer(msg.X, msg.Y)
		case "resize":
			width, height := msg.Width, msg.Height
			if width <= 0 || height <= 0 {
				width, height = defaultViewportWidth, defaultViewportHeight
			}
			tracker.Resize(width, height)
		case "listen":
			if _, err := controller.ToggleListening(); err != nil {
				logger.Debug().Err(err).Msg("toggle listening failed")
			}
		default:
			_ = ws.send(outgoingMessage{Type: "error", Error: "unsupported message type: " + msg.Type})
		}
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, ws *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				return
			}
		}
	}
}
