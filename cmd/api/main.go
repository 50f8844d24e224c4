package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/yui-companion/backend/internal/config"
	"github.com/zhouzirui/yui-companion/backend/internal/handler"
	"github.com/zhouzirui/yui-companion/backend/internal/logging"
	"github.com/zhouzirui/yui-companion/backend/internal/model/persona"
	"github.com/zhouzirui/yui-companion/backend/internal/service/ai"
	"github.com/zhouzirui/yui-companion/backend/internal/service/chat"
	"github.com/zhouzirui/yui-companion/backend/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("info", logging.FormatConsole)
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(cfg.Log.Level, logging.Format(cfg.Log.Format))
	if envErr != nil {
		logger.Warn().Err(envErr).Msg("failed to load .env file, continuing with system environment variables only")
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid environment")
	}

	personas, active, err := loadPersonas(cfg.Persona)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load personas")
	}
	personaStore := persona.NewMemoryStore(personas)
	sessions := chat.NewService()

	deps := handler.Deps{
		Personas:       personaStore,
		Sessions:       sessions,
		DefaultPersona: active.ID,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	}

	// AI 服务
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI, active, logger)
		if err != nil {
			logger.Warn().Err(err).Str("provider", cfg.AI.Provider).Msg("failed to initialize AI service, /api/chat disabled")
		} else {
			deps.AI = aiService
			logger.Info().Str("provider", cfg.AI.Provider).Msg("AI service initialized")
		}
	} else {
		logger.Warn().Str("provider", cfg.AI.Provider).Msg("model credentials not configured, skipping AI service")
	}

	// 语音合成服务
	if cfg.Speech.Enabled() {
		deps.Speech = speech.NewService(cfg.Speech, logger).WithVoice(active.VoiceID)
		logger.Info().Str("model", cfg.Speech.ModelID).Msg("speech service initialized")
	} else {
		logger.Warn().Msg("ElevenLabs credentials not configured, skipping speech service")
	}

	router := handler.NewRouter(deps)

	startServer(ctx, cfg.Server, router, logger)
}

// loadPersonas 读取角色文件（未配置时使用内置角色）并返回当前角色
func loadPersonas(cfg config.PersonaConfig) ([]persona.Persona, persona.Persona, error) {
	personas := persona.Seed()
	if cfg.File != "" {
		loaded, err := persona.LoadFile(cfg.File)
		if err != nil {
			return nil, persona.Persona{}, err
		}
		personas = loaded
	}

	store := persona.NewMemoryStore(personas)
	active, ok := store.FindByID(cfg.ID)
	if !ok {
		return nil, persona.Persona{}, errors.New("persona " + cfg.ID + " not found")
	}
	return personas, active, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger zerolog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("Yui companion backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
