package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Environment 表示运行环境标签。
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
	EnvProduction  Environment = "production"
)

// Valid 判断环境标签是否合法。
func (e Environment) Valid() bool {
	switch e {
	case EnvDevelopment, EnvTest, EnvProduction:
		return true
	default:
		return false
	}
}

// 支持的大模型提供方。
const (
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Env            Environment
	SkipValidation bool
	Server         ServerConfig
	AI             AIConfig
	Speech         SpeechConfig
	Persona        PersonaConfig
	Log            LogConfig
}

// Load 从环境变量加载配置，空字符串视为未设置。
func Load() (*Config, error) {
	skip, err := parseBoolEnv("SKIP_ENV_VALIDATION", false)
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Env:            Environment(strings.ToLower(getEnvOrDefault("APP_ENV", ""))),
		SkipValidation: skip,
		Server:         server,
		AI:             ai,
		Speech:         speech,
		Persona: PersonaConfig{
			File: getEnvOrDefault("PERSONA_FILE", ""),
			ID:   getEnvOrDefault("PERSONA_ID", "yui"),
		},
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console")),
		},
	}, nil
}

// Validate 校验启动所需的环境变量，SKIP_ENV_VALIDATION=true 时跳过。
func (c *Config) Validate() error {
	if c.SkipValidation {
		return nil
	}

	var missing []string
	switch c.AI.Provider {
	case ProviderArk:
		if c.AI.APIKey == "" && (c.AI.AccessKey == "" || c.AI.SecretKey == "") {
			missing = append(missing, "ARK_API_KEY")
		}
	case ProviderOpenAI:
		if c.AI.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("invalid AI_PROVIDER value %q: want %s or %s", c.AI.Provider, ProviderArk, ProviderOpenAI)
	}
	if c.Speech.APIKey == "" {
		missing = append(missing, "ELEVENLABS_API_KEY")
	}
	if c.Speech.VoiceID == "" {
		missing = append(missing, "VOICE_ID")
	}
	if c.Env == "" {
		missing = append(missing, "APP_ENV")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if !c.Env.Valid() {
		return fmt.Errorf("invalid APP_ENV value %q: want development, test or production", c.Env)
	}
	return nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址与跨域白名单。
func loadServerConfig() (ServerConfig, error) {
	origins := splitList(getEnvOrDefault("ALLOWED_ORIGINS", "*"))

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string

	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	Temperature       *float64
	TopP              *float64
	MaxTokens         int
	GenerationTimeout time.Duration
	HistoryLimit      int
}

// Enabled 表示当前提供方的密钥与模型是否齐全。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey != "" && c.OpenAIModel != ""
	case ProviderArk:
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	default:
		return false
	}
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Provider != ProviderArk || !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	maxTokens := c.MaxTokens

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   &maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderArk))

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens := 250
	if override, err := parseOptionalIntEnv("AI_MAX_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		maxTokens = *override
	}

	historyLimit := 20
	if override, err := parseOptionalIntEnv("AI_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			historyLimit = 1
		} else {
			historyLimit = *override
		}
	}

	timeout, err := parseDurationEnv("AI_GENERATION_TIMEOUT", 30*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	modelName := getEnvOrDefault("Model", getEnvOrDefault("ARK_MODEL", ""))

	return AIConfig{
		Provider:          provider,
		APIKey:            strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:         strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:         strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:             modelName,
		BaseURL:           getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:            getEnvOrDefault("ARK_REGION", "cn-beijing"),
		OpenAIAPIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:     getEnvOrDefault("OPENAI_BASE_URL", "https://api.mistral.ai/v1"),
		OpenAIModel:       getEnvOrDefault("OPENAI_MODEL", "mistral-small"),
		Temperature:       temperature,
		TopP:              topP,
		MaxTokens:         maxTokens,
		GenerationTimeout: timeout,
		HistoryLimit:      historyLimit,
	}, nil
}

// SpeechConfig 描述语音合成服务相关配置。
type SpeechConfig struct {
	APIKey  string
	VoiceID string
	ModelID string
	BaseURL string
	Timeout time.Duration
}

// Enabled 表示是否提供了语音合成所需的密钥与音色。
func (c SpeechConfig) Enabled() bool {
	return c.APIKey != "" && c.VoiceID != ""
}

func loadSpeechConfig() (SpeechConfig, error) {
	// 超时既可以写成秒数也可以写成 "30s"
	timeout, err := parseDurationEnv("SPEECH_TIMEOUT", 30*time.Second)
	if err != nil {
		return SpeechConfig{}, err
	}

	return SpeechConfig{
		APIKey:  strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
		VoiceID: strings.TrimSpace(os.Getenv("VOICE_ID")),
		ModelID: getEnvOrDefault("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
		BaseURL: getEnvOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		Timeout: timeout,
	}, nil
}

// PersonaConfig 描述角色设定来源。
type PersonaConfig struct {
	File string
	ID   string
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var items []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
		}
		return time.Duration(seconds) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
