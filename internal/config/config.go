package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Processing ProcessingConfig `yaml:"processing" envconfig:"PROCESSING"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envconfig:"TELEMETRY"`

	// Source is the config file that was read, if any.
	Source string `yaml:"-" ignored:"true"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string          `yaml:"host" envconfig:"BIND_HOST"`
	Port            int             `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	RequestTimeout  time.Duration   `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" validate:"gt=0"`
	MaxUploadMB     int64           `yaml:"max_upload_mb" envconfig:"MAX_UPLOAD_MB" validate:"min=1,max=1024"`
	AllowedOrigins  []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" validate:"min=1"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	// Development adds error detail and stack traces to problem responses.
	Development     bool            `yaml:"development" envconfig:"DEVELOPMENT"`
}

// RateLimitConfig contains rate limiting configuration for upload routes
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gt=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"min=1"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_unless=Output console"`
}

// ProcessingConfig controls how workbooks are processed and exported
type ProcessingConfig struct {
	Ruleset     string `yaml:"ruleset" envconfig:"RULESET" validate:"required"`
	RulesetFile string `yaml:"ruleset_file" envconfig:"RULESET_FILE"`
	OutputDir   string `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
	Format      string `yaml:"format" envconfig:"FORMAT" validate:"oneof=xlsx csv"`
	// Layout overrides the ruleset's output layout when set.
	Layout      string `yaml:"layout" envconfig:"LAYOUT" validate:"omitempty,oneof=separate combined"`
	Timestamp   bool   `yaml:"timestamp" envconfig:"TIMESTAMP"`
	Summary     bool   `yaml:"summary" envconfig:"SUMMARY"`
	Workers     int    `yaml:"workers" envconfig:"WORKERS" validate:"min=1,max=64"`
	MaxWarnings int    `yaml:"max_warnings" envconfig:"MAX_WARNINGS" validate:"min=0"`
}

// TelemetryConfig controls metrics and tracing
type TelemetryConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	TraceExporter  string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=none stdout"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  DefaultRequestTimeout,
			MaxUploadMB:     DefaultMaxUploadMB,
			AllowedOrigins:  []string{"http://localhost:8501"},
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/ncbproc.log",
		},
		Processing: ProcessingConfig{
			Ruleset:     DefaultRuleset,
			OutputDir:   DefaultOutputDir,
			Format:      "xlsx",
			Summary:     true,
			Workers:     DefaultWorkers,
			MaxWarnings: DefaultMaxWarnings,
		},
		Telemetry: TelemetryConfig{
			MetricsEnabled: true,
			ServiceName:    AppName,
			TraceExporter:  "none",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file found by
// FindConfigFile, then NCB_* environment variables. An explicit path that
// does not exist is an error; a missing default file is not.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := FindConfigFile(path)
	if err != nil {
		return nil, err
	}
	if file != "" {
		if err := loadFromFile(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg.Source = file
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// FindConfigFile returns the config file to read. An explicit path wins,
// then $NCB_CONFIG, then the well-known locations. It returns "" when no
// file applies.
func FindConfigFile(explicit string) (string, error) {
	for _, candidate := range []string{explicit, os.Getenv(EnvPrefix + "_CONFIG")} {
		if candidate == "" {
			continue
		}
		if _, err := os.Stat(candidate); err != nil {
			return "", fmt.Errorf("config file %s: %w", candidate, err)
		}
		return candidate, nil
	}

	for _, location := range ConfigFileLocations {
		if _, err := os.Stat(location); err == nil {
			return location, nil
		}
	}
	return "", nil
}

// loadFromFile overlays the YAML file onto cfg. Keys absent from the file
// keep their current values.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}
