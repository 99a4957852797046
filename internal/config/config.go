package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. CUBESEG_SERVER_PORT
const EnvPrefix = "CUBESEG"

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Debug    DebugConfig    `mapstructure:"debug"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Journal  JournalConfig  `mapstructure:"journal"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	MaxInflight  int           `mapstructure:"max_inflight"`
}

// PipelineConfig holds the geometric tuning
type PipelineConfig struct {
	WorkingSize    int     `mapstructure:"working_size"`
	Epsilon        float64 `mapstructure:"epsilon"`
	BoundsPadding  int     `mapstructure:"bounds_padding"`
	Coordinates    string  `mapstructure:"coordinates"`
	EnforceWinding bool    `mapstructure:"enforce_winding"`
}

// BackendConfig selects and configures the model predictors
type BackendConfig struct {
	Bounds       string  `mapstructure:"bounds"`
	Depth        string  `mapstructure:"depth"`
	InferenceURL string  `mapstructure:"inference_url"`
	Model        string  `mapstructure:"model"`
	OllamaURL    string  `mapstructure:"ollama_url"`
	LlamaCppURL  string  `mapstructure:"llamacpp_url"`
	GeminiAPIKey string  `mapstructure:"gemini_api_key"`
	SendSize     int     `mapstructure:"send_size"`
	SendQuality  int     `mapstructure:"send_quality"`
	Confidence   float64 `mapstructure:"confidence"`
}

// DebugConfig controls per-stage debug image output
type DebugConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	Format  string `mapstructure:"format"`
	Quality int    `mapstructure:"quality"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// JournalConfig enables the Postgres scan journal
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// Default returns a configuration with default values
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.max_body_bytes", 20*1024*1024)
	v.SetDefault("server.max_inflight", 4)

	v.SetDefault("pipeline.working_size", 480)
	v.SetDefault("pipeline.epsilon", 15.0)
	v.SetDefault("pipeline.bounds_padding", 15)
	v.SetDefault("pipeline.coordinates", "normalized")
	v.SetDefault("pipeline.enforce_winding", false)

	v.SetDefault("backend.bounds", "inference")
	v.SetDefault("backend.depth", "inference")
	v.SetDefault("backend.inference_url", "http://localhost:9001")
	v.SetDefault("backend.model", "openbmb/minicpm-v4.5")
	v.SetDefault("backend.ollama_url", "http://localhost:11434")
	v.SetDefault("backend.llamacpp_url", "http://localhost:8081")
	v.SetDefault("backend.gemini_api_key", "")
	v.SetDefault("backend.send_size", 768)
	v.SetDefault("backend.send_quality", 85)
	v.SetDefault("backend.confidence", 0.01)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.dir", "./debug")
	v.SetDefault("debug.format", "jpg")
	v.SetDefault("debug.quality", 90)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.dsn", "")
}

// Load reads a YAML file and applies CUBESEG_* environment overrides.
// An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port cannot be empty"))
	}
	if c.Server.MaxBodyBytes < 1 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if c.Pipeline.WorkingSize < 1 {
		errs = append(errs, errors.New("pipeline.working_size must be positive"))
	}
	if c.Pipeline.Epsilon <= 0 {
		errs = append(errs, errors.New("pipeline.epsilon must be positive"))
	}
	if c.Pipeline.BoundsPadding < 0 {
		errs = append(errs, errors.New("pipeline.bounds_padding cannot be negative"))
	}
	if !oneOf(c.Pipeline.Coordinates, "normalized", "absolute") {
		errs = append(errs, fmt.Errorf("pipeline.coordinates must be normalized or absolute, got %q", c.Pipeline.Coordinates))
	}

	if !oneOf(c.Backend.Bounds, "inference", "ollama", "llamacpp", "gemini") {
		errs = append(errs, fmt.Errorf("backend.bounds must be inference, ollama, llamacpp or gemini, got %q", c.Backend.Bounds))
	}
	if !oneOf(c.Backend.Depth, "inference", "none") {
		errs = append(errs, fmt.Errorf("backend.depth must be inference or none, got %q", c.Backend.Depth))
	}
	if c.Backend.Bounds == "gemini" && c.Backend.GeminiAPIKey == "" {
		errs = append(errs, errors.New("backend.gemini_api_key is required for the gemini backend"))
	}
	if c.Backend.SendQuality < 1 || c.Backend.SendQuality > 100 {
		errs = append(errs, errors.New("backend.send_quality must be between 1 and 100"))
	}
	if c.Backend.Confidence < 0 || c.Backend.Confidence > 1 {
		errs = append(errs, errors.New("backend.confidence must be between 0 and 1"))
	}

	if c.Debug.Enabled && !oneOf(c.Debug.Format, "jpg", "jpeg", "png", "webp") {
		errs = append(errs, fmt.Errorf("debug.format must be jpg, png or webp, got %q", c.Debug.Format))
	}
	if c.Debug.Quality < 1 || c.Debug.Quality > 100 {
		errs = append(errs, errors.New("debug.quality must be between 1 and 100"))
	}
	if c.Journal.Enabled && c.Journal.DSN == "" {
		errs = append(errs, errors.New("journal.dsn is required when the journal is enabled"))
	}

	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "cube-segmenter", "config.yaml")
}
