package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxDimension mirrors the codec's hard width/height bound.
const MaxDimension = 65536

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Codec    CodecConfig    `json:"codec" yaml:"codec"`
	Security SecurityConfig `json:"security" yaml:"security"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// LoadOptions holds command-line override options
type LoadOptions struct {
	Host           string
	Port           string
	LogLevel       string
	ConfigFile     string
	MaxUploadBytes int64
	DefaultOutput  string
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string        `json:"host" yaml:"host" env:"SERVER_HOST" default:"0.0.0.0"`
	Port         string        `json:"port" yaml:"port" env:"SERVER_PORT" default:"8080"`
	ReadTimeout  time.Duration `json:"readTimeout" yaml:"readTimeout" env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `json:"writeTimeout" yaml:"writeTimeout" env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `json:"idleTimeout" yaml:"idleTimeout" env:"SERVER_IDLE_TIMEOUT" default:"120s"`
}

// CodecConfig bounds the work a single request may ask the codec to do
type CodecConfig struct {
	MaxUploadBytes int64  `json:"maxUploadBytes" yaml:"maxUploadBytes" env:"CODEC_MAX_UPLOAD_BYTES" default:"67108864"`
	MaxPixelBytes  int64  `json:"maxPixelBytes" yaml:"maxPixelBytes" env:"CODEC_MAX_PIXEL_BYTES" default:"268435456"`
	MaxDimension   int    `json:"maxDimension" yaml:"maxDimension" env:"CODEC_MAX_DIMENSION" default:"65536"`
	DefaultOutput  string `json:"defaultOutput" yaml:"defaultOutput" env:"CODEC_DEFAULT_OUTPUT" default:"png"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	AllowedOrigins     []string `json:"allowedOrigins" yaml:"allowedOrigins" env:"ALLOWED_ORIGINS" default:""`
	MaxConnections     int      `json:"maxConnections" yaml:"maxConnections" env:"MAX_CONNECTIONS" default:"100"`
	EnableRateLimit    bool     `json:"enableRateLimit" yaml:"enableRateLimit" env:"ENABLE_RATE_LIMIT" default:"true"`
	RateLimitPerMinute int      `json:"rateLimitPerMinute" yaml:"rateLimitPerMinute" env:"RATE_LIMIT_PER_MINUTE" default:"60"`
	EnableTLS          bool     `json:"enableTLS" yaml:"enableTLS" env:"ENABLE_TLS" default:"false"`
	TLSCertFile        string   `json:"tlsCertFile" yaml:"tlsCertFile" env:"TLS_CERT_FILE" default:""`
	TLSKeyFile         string   `json:"tlsKeyFile" yaml:"tlsKeyFile" env:"TLS_KEY_FILE" default:""`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL" default:"info"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT" default:"text"`
	File   string `json:"file" yaml:"file" env:"LOG_FILE" default:""`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         "8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Codec: CodecConfig{
			MaxUploadBytes: 64 << 20,
			MaxPixelBytes:  256 << 20,
			MaxDimension:   MaxDimension,
			DefaultOutput:  "png",
		},
		Security: SecurityConfig{
			AllowedOrigins:     []string{},
			MaxConnections:     100,
			EnableRateLimit:    true,
			RateLimitPerMinute: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	return LoadWithOverrides(LoadOptions{})
}

// LoadWithOverrides loads configuration with command-line overrides.
// Precedence, lowest first: defaults, YAML config file, environment, options.
func LoadWithOverrides(opts LoadOptions) (*Config, error) {
	config := Default()

	path := getOverrideOrEnv(opts.ConfigFile, "CONFIG_FILE", "")
	if path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	// Server config
	config.Server.Host = getOverrideOrEnv(opts.Host, "SERVER_HOST", config.Server.Host)
	config.Server.Port = getOverrideOrEnv(opts.Port, "SERVER_PORT", config.Server.Port)
	config.Server.ReadTimeout = getDurationWithDefault("SERVER_READ_TIMEOUT", config.Server.ReadTimeout)
	config.Server.WriteTimeout = getDurationWithDefault("SERVER_WRITE_TIMEOUT", config.Server.WriteTimeout)
	config.Server.IdleTimeout = getDurationWithDefault("SERVER_IDLE_TIMEOUT", config.Server.IdleTimeout)

	// Codec config
	config.Codec.MaxUploadBytes = getInt64WithDefault("CODEC_MAX_UPLOAD_BYTES", config.Codec.MaxUploadBytes)
	if opts.MaxUploadBytes > 0 {
		config.Codec.MaxUploadBytes = opts.MaxUploadBytes
	}
	config.Codec.MaxPixelBytes = getInt64WithDefault("CODEC_MAX_PIXEL_BYTES", config.Codec.MaxPixelBytes)
	config.Codec.MaxDimension = getIntWithDefault("CODEC_MAX_DIMENSION", config.Codec.MaxDimension)
	config.Codec.DefaultOutput = getOverrideOrEnv(opts.DefaultOutput, "CODEC_DEFAULT_OUTPUT", config.Codec.DefaultOutput)

	// Security config
	config.Security.AllowedOrigins = getStringSliceWithDefault("ALLOWED_ORIGINS", config.Security.AllowedOrigins)
	config.Security.MaxConnections = getIntWithDefault("MAX_CONNECTIONS", config.Security.MaxConnections)
	config.Security.EnableRateLimit = getBoolWithDefault("ENABLE_RATE_LIMIT", config.Security.EnableRateLimit)
	config.Security.RateLimitPerMinute = getIntWithDefault("RATE_LIMIT_PER_MINUTE", config.Security.RateLimitPerMinute)
	config.Security.EnableTLS = getBoolWithDefault("ENABLE_TLS", config.Security.EnableTLS)
	config.Security.TLSCertFile = getEnvWithDefault("TLS_CERT_FILE", config.Security.TLSCertFile)
	config.Security.TLSKeyFile = getEnvWithDefault("TLS_KEY_FILE", config.Security.TLSKeyFile)

	// Logging config
	config.Logging.Level = getOverrideOrEnv(opts.LogLevel, "LOG_LEVEL", config.Logging.Level)
	config.Logging.Format = getEnvWithDefault("LOG_FORMAT", config.Logging.Format)
	config.Logging.File = getEnvWithDefault("LOG_FILE", config.Logging.File)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFile overlays the YAML document at path onto c. Keys absent from the
// file keep their current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return errors.New("server port cannot be empty")
	}

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}

	// Validate codec config
	if c.Codec.MaxUploadBytes <= 0 {
		return errors.New("max upload bytes must be positive")
	}

	if c.Codec.MaxPixelBytes <= 0 {
		return errors.New("max pixel bytes must be positive")
	}

	if c.Codec.MaxDimension <= 0 || c.Codec.MaxDimension > MaxDimension {
		return fmt.Errorf("max dimension must be between 1 and %d", MaxDimension)
	}

	switch c.Codec.DefaultOutput {
	case "png", "bmp":
	default:
		return fmt.Errorf("invalid default output: %s", c.Codec.DefaultOutput)
	}

	// Validate security config
	if c.Security.EnableTLS {
		if c.Security.TLSCertFile == "" || c.Security.TLSKeyFile == "" {
			return errors.New("TLS certificate and key files must be specified when TLS is enabled")
		}

		if _, err := os.Stat(c.Security.TLSCertFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS certificate file does not exist: %s", c.Security.TLSCertFile)
		}

		if _, err := os.Stat(c.Security.TLSKeyFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS key file does not exist: %s", c.Security.TLSKeyFile)
		}
	}

	if c.Security.MaxConnections <= 0 {
		return errors.New("max connections must be positive")
	}

	if c.Security.EnableRateLimit && c.Security.RateLimitPerMinute <= 0 {
		return errors.New("rate limit per minute must be positive")
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}

	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64WithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceWithDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return splitString(value, ",")
	}
	return defaultValue
}

// getOverrideOrEnv returns command-line override value, env value, or default
func getOverrideOrEnv(override, envKey, defaultValue string) string {
	if override != "" {
		return override
	}
	return getEnvWithDefault(envKey, defaultValue)
}

func splitString(s, sep string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
