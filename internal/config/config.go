package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/enoki/backend/internal/analysis/risk"
	"github.com/zhouzirui/enoki/backend/internal/analysis/sarcasm"
	"github.com/zhouzirui/enoki/backend/internal/service/memory"
	"github.com/zhouzirui/enoki/backend/internal/service/reply"
)

// Config 聚合整个服务的配置项。进程启动时加载一次，之后只读。
type Config struct {
	Server      ServerConfig
	LLMProvider string
	AI          AIConfig
	OpenAI      OpenAIConfig
	Emotion     EmotionConfig
	Sarcasm     sarcasm.Config
	Risk        risk.Config
	Reply       reply.Config
	Memory      memory.Config
	Store       StoreConfig
	Limits      LimitsConfig
	LexiconPath string
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	emotion, err := loadEmotionConfig()
	if err != nil {
		return nil, err
	}

	sarcasmCfg, err := loadSarcasmConfig()
	if err != nil {
		return nil, err
	}

	riskCfg, err := loadRiskConfig()
	if err != nil {
		return nil, err
	}

	replyCfg, err := loadReplyConfig()
	if err != nil {
		return nil, err
	}

	limits, err := loadLimitsConfig()
	if err != nil {
		return nil, err
	}

	memoryCfg := memory.DefaultConfig()
	memoryCfg.CopingCap = limits.CopingCap
	memoryCfg.HistoryWindow = limits.HistoryWindow
	memoryCfg.Timeout = replyCfg.Timeout

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	provider := strings.ToLower(getEnvOrDefault("LLM_PROVIDER", "ark"))
	switch provider {
	case "ark", "openai", "none":
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER value %q", provider)
	}

	return &Config{
		Server:      server,
		LLMProvider: provider,
		AI:          ai,
		OpenAI:      loadOpenAIConfig(),
		Emotion:     emotion,
		Sarcasm:     sarcasmCfg,
		Risk:        riskCfg,
		Reply:       replyCfg,
		Memory:      memoryCfg,
		Store:       store,
		Limits:      limits,
		LexiconPath: strings.TrimSpace(os.Getenv("LEXICON_PATH")),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// AllowedOrigins 为空时允许任意来源。
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS"), ",")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// AIConfig 描述 Ark 大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。单次调用的温度与长度由调用方覆盖。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
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

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// OpenAIConfig 描述 OpenAI 兼容接口配置。
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Enabled 表示是否提供了 API Key。
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

func loadOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		Model:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		BaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
	}
}

// EmotionConfig 描述外部情绪/反讽评分服务。
type EmotionConfig struct {
	BaseURL string
	// IronyPath 为空时不调用反讽模型。
	IronyPath string
	Timeout   time.Duration
	Enabled   bool
}

func loadEmotionConfig() (EmotionConfig, error) {
	timeout, err := parseDurationSecondsEnv("EMOTION_TIMEOUT_SECONDS", 5*time.Second)
	if err != nil {
		return EmotionConfig{}, err
	}
	enabled, err := parseBoolEnv("EMOTION_SERVICE_ENABLED", true)
	if err != nil {
		return EmotionConfig{}, err
	}
	ironyPath := getEnvOrDefault("EMOTION_IRONY_PATH", "/irony")
	if strings.EqualFold(ironyPath, "off") {
		ironyPath = ""
	}
	return EmotionConfig{
		BaseURL:   strings.TrimRight(getEnvOrDefault("EMOTION_SERVICE_URL", "http://127.0.0.1:8001"), "/"),
		IronyPath: ironyPath,
		Timeout:   timeout,
		Enabled:   enabled,
	}, nil
}

func loadSarcasmConfig() (sarcasm.Config, error) {
	cfg := sarcasm.DefaultConfig()
	fields := []struct {
		key string
		dst *float64
	}{
		{"SARCASM_STRICT_THRESHOLD", &cfg.StrictThreshold},
		{"SARCASM_POSSIBLE_THRESHOLD", &cfg.PossibleThreshold},
		{"SARCASM_IRONY_WEIGHT", &cfg.IronyWeight},
		{"SARCASM_IRONY_FLOOR", &cfg.IronyFloor},
		{"SARCASM_IRONY_FLOOR_BONUS", &cfg.IronyFloorBonus},
		{"SARCASM_INTENT_WEIGHT", &cfg.IntentWeight},
		{"SARCASM_CONTRADICTION_WEIGHT", &cfg.ContradictionWeight},
		{"SARCASM_STYLE_WEIGHT", &cfg.StyleWeight},
		{"SARCASM_COMBO_WEIGHT", &cfg.ComboWeight},
		{"SARCASM_BORDERLINE_MARGIN", &cfg.BorderlineMargin},
		{"SARCASM_BORDERLINE_BUMP", &cfg.BorderlineBump},
		{"SARCASM_BLEND_WEIGHT", &cfg.BlendWeight},
	}
	for _, f := range fields {
		v, err := parseOptionalFloatEnv(f.key)
		if err != nil {
			return sarcasm.Config{}, err
		}
		if v != nil {
			*f.dst = *v
		}
	}

	if cfg.StrictThreshold <= cfg.PossibleThreshold {
		log.Printf("[config] warning: SARCASM_STRICT_THRESHOLD (%.2f) should exceed SARCASM_POSSIBLE_THRESHOLD (%.2f)", cfg.StrictThreshold, cfg.PossibleThreshold)
	}

	calibration, err := sarcasm.ParseCalibration(os.Getenv("SARCASM_CALIBRATION"))
	if err != nil {
		log.Printf("[config] sarcasm calibration disabled: %v", err)
		calibration = nil
	}
	cfg.Calibration = calibration
	return cfg, nil
}

func loadRiskConfig() (risk.Config, error) {
	cfg := risk.DefaultConfig()

	if v, err := parseOptionalFloatEnv("RISK_GRIEF_THRESHOLD"); err != nil {
		return risk.Config{}, err
	} else if v != nil {
		cfg.GriefThreshold = *v
	}
	if v, err := parseOptionalFloatEnv("RISK_FALLBACK_THRESHOLD"); err != nil {
		return risk.Config{}, err
	} else if v != nil {
		cfg.FallbackThreshold = *v
	}
	timeout, err := parseDurationSecondsEnv("RISK_TIMEOUT_SECONDS", cfg.Timeout)
	if err != nil {
		return risk.Config{}, err
	}
	cfg.Timeout = timeout
	return cfg, nil
}

func loadReplyConfig() (reply.Config, error) {
	cfg := reply.DefaultConfig()
	timeout, err := parseDurationSecondsEnv("REPLY_TIMEOUT_SECONDS", cfg.Timeout)
	if err != nil {
		return reply.Config{}, err
	}
	cfg.Timeout = timeout
	if resources := splitList(os.Getenv("CRISIS_RESOURCES"), "|"); len(resources) > 0 {
		cfg.CrisisResources = resources
	}
	return cfg, nil
}

// StoreConfig 描述持久化存储。
type StoreConfig struct {
	Path          string
	InMemory      bool
	EncryptionKey string
}

func loadStoreConfig() (StoreConfig, error) {
	inMemory, err := parseBoolEnv("STORE_IN_MEMORY", false)
	if err != nil {
		return StoreConfig{}, err
	}
	return StoreConfig{
		Path:          getEnvOrDefault("STORE_PATH", "./data/enoki"),
		InMemory:      inMemory,
		EncryptionKey: strings.TrimSpace(os.Getenv("ENCRYPTION_KEY")),
	}, nil
}

// LimitsConfig 汇总各类容量与频率限制。
type LimitsConfig struct {
	EphemeralMaxTurns  int
	CopingCap          int
	HistoryWindow      int
	RateLimit          time.Duration
	AnonConsentAllowed bool
}

func loadLimitsConfig() (LimitsConfig, error) {
	limits := LimitsConfig{
		EphemeralMaxTurns: 10,
		CopingCap:         8,
		HistoryWindow:     12,
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"EPHEMERAL_MAX_TURNS", &limits.EphemeralMaxTurns},
		{"MEMORY_COPING_CAP", &limits.CopingCap},
		{"HISTORY_WINDOW", &limits.HistoryWindow},
	}
	for _, f := range ints {
		v, err := parseOptionalIntEnv(f.key)
		if err != nil {
			return LimitsConfig{}, err
		}
		if v == nil {
			continue
		}
		if *v < 1 {
			return LimitsConfig{}, fmt.Errorf("invalid %s value %d: must be positive", f.key, *v)
		}
		*f.dst = *v
	}

	rate, err := parseDurationSecondsEnv("RATE_LIMIT_SECONDS", 5*time.Second)
	if err != nil {
		return LimitsConfig{}, err
	}
	limits.RateLimit = rate

	anon, err := parseBoolEnv("ANON_CONSENT_ALLOWED", false)
	if err != nil {
		return LimitsConfig{}, err
	}
	limits.AnonConsentAllowed = anon
	return limits, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw, sep string) []string {
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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

// parseDurationSecondsEnv 读取以秒为单位的小数，例如 "2.5"。
func parseDurationSecondsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	v, err := parseOptionalFloatEnv(key)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return defaultValue, nil
	}
	if *v < 0 {
		return 0, fmt.Errorf("invalid %s value %v: must not be negative", key, *v)
	}
	return time.Duration(*v * float64(time.Second)), nil
}
