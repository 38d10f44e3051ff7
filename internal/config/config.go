package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Analyzer   AnalyzerConfig   `yaml:"analyzer" mapstructure:"analyzer"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Scorer     ScorerConfig     `yaml:"scorer" mapstructure:"scorer"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Templates  TemplatesConfig  `yaml:"templates" mapstructure:"templates"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the corrections database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// EngineConfig configures correction resolution.
type EngineConfig struct {
	AcceptThreshold       float64 `yaml:"accept_threshold" mapstructure:"accept_threshold"`
	ConfirmationThreshold int     `yaml:"confirmation_threshold" mapstructure:"confirmation_threshold"`
	ScorerTimeoutSecs     int     `yaml:"scorer_timeout_secs" mapstructure:"scorer_timeout_secs"`
}

// AnalyzerConfig configures feedback pattern mining.
type AnalyzerConfig struct {
	MinOccurrences      int     `yaml:"min_occurrences" mapstructure:"min_occurrences"`
	AutoApplyConfidence float64 `yaml:"auto_apply_confidence" mapstructure:"auto_apply_confidence"`
	WindowHours         int     `yaml:"window_hours" mapstructure:"window_hours"`
}

// BatchConfig configures batch document processing.
type BatchConfig struct {
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
	ExtractTimeoutSecs     int `yaml:"extract_timeout_secs" mapstructure:"extract_timeout_secs"`
}

// ScorerConfig holds ML scoring service settings.
type ScorerConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Key         string  `yaml:"key" mapstructure:"key"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst   int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// ClassifierConfig holds template classification service settings.
type ClassifierConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// OCRConfig configures text extraction from scanned documents.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	TesseractPath string `yaml:"tesseract_path" mapstructure:"tesseract_path"`
	Languages     string `yaml:"languages" mapstructure:"languages"`
	RemoteURL     string `yaml:"remote_url" mapstructure:"remote_url"`
	RemoteKey     string `yaml:"remote_key" mapstructure:"remote_key"`
}

// TemplatesConfig points at the document template registry file.
type TemplatesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DOCFIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "docfix.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("engine.accept_threshold", 0.7)
	v.SetDefault("engine.confirmation_threshold", 3)
	v.SetDefault("engine.scorer_timeout_secs", 5)
	v.SetDefault("analyzer.min_occurrences", 2)
	v.SetDefault("analyzer.auto_apply_confidence", 0.7)
	v.SetDefault("analyzer.window_hours", 168)
	v.SetDefault("batch.max_concurrent_documents", 4)
	v.SetDefault("batch.extract_timeout_secs", 60)
	v.SetDefault("scorer.rate_limit", 10)
	v.SetDefault("scorer.rate_burst", 10)
	v.SetDefault("scorer.max_attempts", 3)
	v.SetDefault("ocr.provider", "tesseract")
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("ocr.languages", "rus+eng")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
