package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/yui-companion/backend/internal/handler/chat"
	"github.com/zhouzirui/yui-companion/backend/internal/handler/persona"
	"github.com/zhouzirui/yui-companion/backend/internal/handler/session"
	"github.com/zhouzirui/yui-companion/backend/internal/handler/speech"
	"github.com/zhouzirui/yui-companion/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/yui-companion/backend/internal/middleware"
	personaModel "github.com/zhouzirui/yui-companion/backend/internal/model/persona"
	chatService "github.com/zhouzirui/yui-companion/backend/internal/service/chat"
	"github.com/zhouzirui/yui-companion/backend/pkg/utils"
)

// Deps collects what the router hands to the handlers. AI and Speech may be
// nil when the provider is not configured.
type Deps struct {
	Personas       personaModel.Store
	Sessions       *chatService.Service
	AI             chat.Replier
	Speech         speech.SpeechService
	DefaultPersona string
	PipelineWidth  int
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(deps.Logger.With().Str("component", "http").Logger()))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	personaHandler := persona.New(deps.Personas)
	chatHandler := chat.New(deps.AI, deps.Logger)

	var sessionAI session.Replier
	if deps.AI != nil {
		sessionAI = deps.AI
	}
	var sessionSpeech session.SpeechService
	if deps.Speech != nil {
		sessionSpeech = deps.Speech
	}
	sessionHandler := session.New(sessionAI, sessionSpeech, deps.Sessions, deps.Personas, session.Options{
		DefaultPersona: deps.DefaultPersona,
		PipelineWidth:  deps.PipelineWidth,
	}, deps.Logger)

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		sessionHandler.RegisterRoutes(api)

		if deps.Speech != nil {
			speech.New(deps.Speech, deps.Logger).RegisterRoutes(api)
		} else {
			unavailable := func(w http.ResponseWriter, _ *http.Request) {
				utils.RespondError(w, http.StatusServiceUnavailable, "speech service unavailable")
			}
			api.Post("/synthesize", unavailable)
			api.Get("/speech/health", unavailable)
		}
	})

	return r
}
