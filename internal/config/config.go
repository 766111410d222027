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

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Chat      ChatConfig
	Clipboard ClipboardConfig
	Log       LogConfig
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

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	clipboard, err := loadClipboardConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		Chat:      chat,
		Clipboard: clipboard,
		Log:       loadLogConfig(),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	Timeout        *time.Duration
	StreamResponse bool
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
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
		Timeout:     c.Timeout,
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

	timeout, err := parseOptionalDurationEnv("ARK_TIMEOUT")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv("ARK_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("Model")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		Timeout:        timeout,
		StreamResponse: stream,
	}, nil
}

// Responder 选择助手回复的来源。
type Responder string

const (
	// ResponderAuto 在 Ark 凭证齐全时使用大模型，否则回退到模拟回复。
	ResponderAuto      Responder = "auto"
	ResponderSimulated Responder = "simulated"
	ResponderProvider  Responder = "provider"
)

// ParseResponder 校验并规范化回复来源名称（不区分大小写）。
func ParseResponder(raw string) (Responder, error) {
	responder := Responder(strings.ToLower(strings.TrimSpace(raw)))
	switch responder {
	case ResponderAuto, ResponderSimulated, ResponderProvider:
		return responder, nil
	default:
		return "", fmt.Errorf("unknown responder %q: want auto, simulated or provider", raw)
	}
}

// ChatConfig 描述对话回合相关配置。
type ChatConfig struct {
	Responder    Responder
	SimMinDelay  time.Duration
	SimMaxDelay  time.Duration
	SystemPrompt string
	HistoryLimit int
}

func loadChatConfig() (ChatConfig, error) {
	responder, err := ParseResponder(getEnvOrDefault("CHAT_RESPONDER", string(ResponderAuto)))
	if err != nil {
		return ChatConfig{}, fmt.Errorf("invalid CHAT_RESPONDER: %w", err)
	}

	minDelay, err := parseDurationEnv("CHAT_SIM_MIN_DELAY", time.Second)
	if err != nil {
		return ChatConfig{}, err
	}

	maxDelay, err := parseDurationEnv("CHAT_SIM_MAX_DELAY", 2*time.Second)
	if err != nil {
		return ChatConfig{}, err
	}
	if maxDelay < minDelay {
		return ChatConfig{}, fmt.Errorf("CHAT_SIM_MAX_DELAY (%s) must not be less than CHAT_SIM_MIN_DELAY (%s)", maxDelay, minDelay)
	}

	historyLimit := 10
	if override, err := parseOptionalIntEnv("CHAT_HISTORY_LIMIT"); err != nil {
		return ChatConfig{}, err
	} else if override != nil {
		if *override < 1 {
			historyLimit = 1
		} else {
			historyLimit = *override
		}
	}

	return ChatConfig{
		Responder:    responder,
		SimMinDelay:  minDelay,
		SimMaxDelay:  maxDelay,
		SystemPrompt: strings.TrimSpace(os.Getenv("CHAT_SYSTEM_PROMPT")),
		HistoryLimit: historyLimit,
	}, nil
}

// ClipboardConfig 描述复制提示的重置时间。
type ClipboardConfig struct {
	ResetDelay time.Duration
}

func loadClipboardConfig() (ClipboardConfig, error) {
	delay, err := parseDurationEnv("CLIPBOARD_RESET_DELAY", 2*time.Second)
	if err != nil {
		return ClipboardConfig{}, err
	}
	if delay <= 0 {
		return ClipboardConfig{}, fmt.Errorf("CLIPBOARD_RESET_DELAY must be positive, got %s", delay)
	}
	return ClipboardConfig{ResetDelay: delay}, nil
}

// LogConfig 描述日志级别与输出格式。
type LogConfig struct {
	Level       string
	Development bool
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:       strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Development: strings.EqualFold(getEnvOrDefault("LOG_FORMAT", "json"), "console"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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
	val, err := parseOptionalDurationEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}

// parseOptionalDurationEnv 接受 Go 时长格式（"1500ms"、"2s"），纯数字按毫秒处理。
func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	if ms, err := strconv.Atoi(value); err == nil {
		d := time.Duration(ms) * time.Millisecond
		return &d, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &d, nil
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
