package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/medlens/rxchat/backend/internal/service/ai"
	"github.com/medlens/rxchat/backend/internal/service/ocr"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	Log    LogConfig
	Store  StoreConfig
	Cache  CacheConfig
	AI     AIConfig
	Prompt PromptConfig
	OCR    OCRConfig
	Watch  WatchConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{Server: server}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("invalid DB_DRIVER value: %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		switch c.Store.Driver {
		case "postgres":
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		case "sqlite":
			c.Store.DatabaseURL = defaultSQLitePath
		}
	}

	switch c.AI.Provider {
	case "openai", "ark":
	default:
		return fmt.Errorf("invalid AI_PROVIDER value: %q", c.AI.Provider)
	}

	switch c.OCR.Engine {
	case "tesseract", "none":
	case "remote":
		if c.OCR.RemoteURL == "" {
			return fmt.Errorf("OCR_REMOTE_URL is required when OCR_ENGINE=remote")
		}
	default:
		return fmt.Errorf("invalid OCR_ENGINE value: %q", c.OCR.Engine)
	}

	if c.Prompt.MaxAnchorChars < 0 {
		return fmt.Errorf("invalid PROMPT_MAX_ANCHOR_CHARS value: %d", c.Prompt.MaxAnchorChars)
	}
	return nil
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

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

// defaultSQLitePath 是未设置 DATABASE_URL 时 sqlite 使用的文件。
const defaultSQLitePath = "data/rxchat.db"

// StoreConfig 描述处方存储后端。
type StoreConfig struct {
	Driver      string `env:"DB_DRIVER" envDefault:"sqlite"`
	DatabaseURL string `env:"DATABASE_URL"`
}

// CacheConfig 描述可选的 Redis 缓存，Addr 为空表示关闭。
type CacheConfig struct {
	RedisAddr string        `env:"REDIS_ADDR"`
	TTL       time.Duration `env:"REDIS_TTL" envDefault:"1h"`
}

// Enabled 表示是否配置了 Redis。
func (c CacheConfig) Enabled() bool {
	return c.RedisAddr != ""
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string `env:"AI_PROVIDER" envDefault:"openai"`

	// OpenAI 兼容接口，默认指向 Mistral。
	OpenAIKey     string `env:"MISTRAL_API_KEY"`
	OpenAIBaseURL string `env:"AI_BASE_URL" envDefault:"https://api.mistral.ai/v1"`

	// Ark 凭证。
	APIKey    string `env:"ARK_API_KEY"`
	AccessKey string `env:"ARK_ACCESS_KEY"`
	SecretKey string `env:"ARK_SECRET_KEY"`
	BaseURL   string `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region    string `env:"ARK_REGION" envDefault:"cn-beijing"`

	Model          string        `env:"AI_MODEL" envDefault:"mistral-large-latest"`
	Temperature    *float64      `env:"AI_TEMPERATURE" envDefault:"0.7"`
	TopP           *float64      `env:"AI_TOP_P"`
	MaxTokens      *int          `env:"AI_MAX_TOKENS" envDefault:"500"`
	Timeout        time.Duration `env:"AI_TIMEOUT" envDefault:"60s"`
	StreamResponse bool          `env:"AI_STREAM" envDefault:"true"`
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	if c.Provider == "ark" {
		return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
	}
	return c.OpenAIKey != ""
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + AI_MODEL 或 AK/SK 组合")
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

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	var timeout *time.Duration
	if c.Timeout > 0 {
		val := c.Timeout
		timeout = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
		Timeout:     timeout,
	}

	return ark.NewChatModel(ctx, cfg)
}

// OpenAIConfig 转换为 OpenAI 兼容客户端配置。
func (c AIConfig) OpenAIConfig() ai.OpenAIConfig {
	return ai.OpenAIConfig{
		APIKey:      c.OpenAIKey,
		BaseURL:     c.OpenAIBaseURL,
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.Timeout,
	}
}

// PromptConfig 控制提示词组装。
type PromptConfig struct {
	// 0 表示不截断。
	MaxAnchorChars int `env:"PROMPT_MAX_ANCHOR_CHARS" envDefault:"12000"`
}

// OCRConfig 描述文字识别引擎。
type OCRConfig struct {
	Engine             string        `env:"OCR_ENGINE" envDefault:"tesseract"`
	Languages          []string      `env:"OCR_LANGUAGES" envDefault:"eng" envSeparator:","`
	TessdataCandidates []string      `env:"OCR_TESSDATA_CANDIDATES" envDefault:"/app/.apt/usr/share/tesseract-ocr/4.00/tessdata,/usr/share/tesseract-ocr/5/tessdata,/usr/share/tesseract-ocr/4.00/tessdata,/usr/local/share/tessdata,/opt/homebrew/share/tessdata" envSeparator:","`
	RemoteURL          string        `env:"OCR_REMOTE_URL"`
	RemoteTimeout      time.Duration `env:"OCR_REMOTE_TIMEOUT" envDefault:"60s"`
	MaxImageBytes      int           `env:"OCR_MAX_IMAGE_BYTES" envDefault:"10485760"`
}

// ResolveTessdata 在启动时确定一次 tessdata 目录，未找到时返回空字符串。
func (c OCRConfig) ResolveTessdata() string {
	return ocr.ResolveTessdata(c.TessdataCandidates)
}

// WatchConfig 描述收件目录。
type WatchConfig struct {
	Dir      string        `env:"WATCH_DIR" envDefault:"inbox"`
	Debounce time.Duration `env:"WATCH_DEBOUNCE" envDefault:"500ms"`
}
