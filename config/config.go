package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the recipe generation system.
type Config struct {
	General  GeneralConfig  `mapstructure:"general"`
	Server   ServerConfig   `mapstructure:"server"`
	Provider ProviderConfig `mapstructure:"provider"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Search   SearchConfig   `mapstructure:"search"`
	Generate GenerateConfig `mapstructure:"generate"`
	Media    MediaConfig    `mapstructure:"media"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// ProviderConfig contains model provider settings.
type ProviderConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig configures the OpenAI-backed provider.
type OpenAIConfig struct {
	APIKey          string `mapstructure:"api_key"`
	CompletionModel string `mapstructure:"completion_model"`
	EmbeddingModel  string `mapstructure:"embedding_model"`
	// EmbeddingDimensions must match the vector(n) width of the migrated
	// chunks.embedding column; the store refuses to start on a mismatch.
	EmbeddingDimensions int           `mapstructure:"embedding_dimensions"`
	ImageModel          string        `mapstructure:"image_model"`
	MaxTokens           int           `mapstructure:"max_tokens"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

func (o OpenAIConfig) Validate() error {
	if strings.TrimSpace(o.APIKey) == "" {
		return fmt.Errorf("provider.openai.api_key required (or OPENAI_API_KEY)")
	}
	if o.EmbeddingDimensions <= 0 {
		return fmt.Errorf("provider.openai.embedding_dimensions must be > 0")
	}
	return nil
}

// StorageConfig groups persistence backends.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings.
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" || strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.host/dbname (or url) required")
	}
	return nil
}

// DSN renders a connection string from either the URL or discrete fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains optional Redis cache settings.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required when redis is enabled")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required when redis is enabled")
	}
	return nil
}

// IngestConfig controls document processing.
type IngestConfig struct {
	DocumentsDir         string `mapstructure:"documents_dir"`
	WindowTokens         int    `mapstructure:"window_tokens"`
	OverlapTokens        int    `mapstructure:"overlap_tokens"`
	PagesPerBatch        int    `mapstructure:"pages_per_batch"`
	DriveCredentialsFile string `mapstructure:"drive_credentials_file"`
}

func (i IngestConfig) Validate() error {
	if i.WindowTokens <= 0 {
		return fmt.Errorf("ingest.window_tokens must be > 0")
	}
	if i.OverlapTokens < 0 || i.OverlapTokens >= i.WindowTokens {
		return fmt.Errorf("ingest.overlap_tokens must be in [0, window_tokens)")
	}
	return nil
}

// SearchConfig controls hybrid retrieval.
type SearchConfig struct {
	DefaultLimit  int           `mapstructure:"default_limit"`
	QueryCacheTTL time.Duration `mapstructure:"query_cache_ttl"`
}

// GenerateConfig controls recipe generation.
type GenerateConfig struct {
	NumExamples int  `mapstructure:"num_examples"`
	Illustrate  bool `mapstructure:"illustrate"`
}

// MediaConfig controls durable image storage.
type MediaConfig struct {
	Dir            string `mapstructure:"dir"`
	BaseURL        string `mapstructure:"base_url"`
	PlaceholderURL string `mapstructure:"placeholder_url"`
	ImageSize      string `mapstructure:"image_size"`
	ImageQuality   string `mapstructure:"image_quality"`
}

// LoadConfig reads configuration from a JSON file plus RECIPEGEN_* env overrides.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "60s")
	viper.SetDefault("server.address", ":10002")
	viper.SetDefault("provider.openai.completion_model", "gpt-4o")
	viper.SetDefault("provider.openai.embedding_model", "text-embedding-3-small")
	viper.SetDefault("provider.openai.embedding_dimensions", 1536)
	viper.SetDefault("provider.openai.image_model", "dall-e-3")
	viper.SetDefault("provider.openai.max_tokens", 4096)
	viper.SetDefault("provider.openai.timeout", "60s")
	viper.SetDefault("ingest.documents_dir", "./documents")
	viper.SetDefault("ingest.window_tokens", 2000)
	viper.SetDefault("ingest.overlap_tokens", 200)
	viper.SetDefault("ingest.pages_per_batch", 10)
	viper.SetDefault("search.default_limit", 5)
	viper.SetDefault("search.query_cache_ttl", "10m")
	viper.SetDefault("generate.num_examples", 3)
	viper.SetDefault("generate.illustrate", true)
	viper.SetDefault("media.dir", "./storage/media")
	viper.SetDefault("media.base_url", "/media")
	viper.SetDefault("media.placeholder_url", "/media/recipe-placeholder.png")
	viper.SetDefault("media.image_size", "1024x1024")
	viper.SetDefault("media.image_quality", "standard")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("RECIPEGEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if config.Provider.OpenAI.APIKey == "" {
		config.Provider.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := config.Provider.OpenAI.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	if err := config.Ingest.Validate(); err != nil {
		panic(err)
	}
	return &config
}
