package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name:    "default configuration",
			envVars: map[string]string{},
			want:    Default(),
		},
		{
			name: "custom environment variables",
			envVars: map[string]string{
				"SERVER_HOST":            "127.0.0.1",
				"SERVER_PORT":            "9090",
				"LOG_LEVEL":              "debug",
				"MAX_CONNECTIONS":        "50",
				"CODEC_MAX_UPLOAD_BYTES": "1024",
				"CODEC_DEFAULT_OUTPUT":   "bmp",
				"ALLOWED_ORIGINS":        "https://a.example, https://b.example",
			},
			want: &Config{
				Server: ServerConfig{
					Host:         "127.0.0.1",
					Port:         "9090",
					ReadTimeout:  30 * time.Second,
					WriteTimeout: 30 * time.Second,
					IdleTimeout:  120 * time.Second,
				},
				Codec: CodecConfig{
					MaxUploadBytes: 1024,
					MaxPixelBytes:  256 << 20,
					MaxDimension:   MaxDimension,
					DefaultOutput:  "bmp",
				},
				Security: SecurityConfig{
					AllowedOrigins:     []string{"https://a.example", "https://b.example"},
					MaxConnections:     50,
					EnableRateLimit:    true,
					RateLimitPerMinute: 60,
				},
				Logging: LoggingConfig{
					Level:  "debug",
					Format: "text",
				},
			},
		},
		{
			name:    "dimension above codec bound",
			envVars: map[string]string{"CODEC_MAX_DIMENSION": "65537"},
			wantErr: true,
		},
		{
			name:    "unknown output format",
			envVars: map[string]string{"CODEC_DEFAULT_OUTPUT": "gif"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid configuration")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestLoadWithOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := LoadWithOverrides(LoadOptions{
		Host:           "192.168.1.100",
		Port:           "443",
		LogLevel:       "warn",
		MaxUploadBytes: 4096,
		DefaultOutput:  "bmp",
	})
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.100", cfg.Server.Host)
	assert.Equal(t, "443", cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, int64(4096), cfg.Codec.MaxUploadBytes)
	assert.Equal(t, "bmp", cfg.Codec.DefaultOutput)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: "7070"
  readTimeout: 5s
codec:
  maxUploadBytes: 2048
  maxDimension: 4096
security:
  allowedOrigins: [https://viewer.example]
  enableRateLimit: false
logging:
  level: debug
`)

	t.Run("file values apply over defaults", func(t *testing.T) {
		cfg, err := LoadWithOverrides(LoadOptions{ConfigFile: path})
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, "7070", cfg.Server.Port)
		assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, int64(2048), cfg.Codec.MaxUploadBytes)
		assert.Equal(t, 4096, cfg.Codec.MaxDimension)
		assert.Equal(t, "png", cfg.Codec.DefaultOutput)
		assert.Equal(t, []string{"https://viewer.example"}, cfg.Security.AllowedOrigins)
		assert.False(t, cfg.Security.EnableRateLimit)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("environment beats file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", path)
		t.Setenv("SERVER_PORT", "6060")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "6060", cfg.Server.Port)
		assert.Equal(t, int64(2048), cfg.Codec.MaxUploadBytes)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadWithOverrides(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read config file")
	})

	t.Run("malformed file", func(t *testing.T) {
		bad := writeConfigFile(t, "server: [unterminated")
		_, err := LoadWithOverrides(LoadOptions{ConfigFile: bad})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config file")
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid configuration",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing server port",
			mutate:  func(c *Config) { c.Server.Port = "" },
			wantErr: true,
			errMsg:  "server port cannot be empty",
		},
		{
			name:    "invalid port range",
			mutate:  func(c *Config) { c.Server.Port = "99999" },
			wantErr: true,
			errMsg:  "invalid server port",
		},
		{
			name:    "zero upload limit",
			mutate:  func(c *Config) { c.Codec.MaxUploadBytes = 0 },
			wantErr: true,
			errMsg:  "max upload bytes must be positive",
		},
		{
			name:    "zero pixel limit",
			mutate:  func(c *Config) { c.Codec.MaxPixelBytes = 0 },
			wantErr: true,
			errMsg:  "max pixel bytes must be positive",
		},
		{
			name:    "dimension above codec bound",
			mutate:  func(c *Config) { c.Codec.MaxDimension = MaxDimension + 1 },
			wantErr: true,
			errMsg:  "max dimension must be between",
		},
		{
			name:    "unknown output",
			mutate:  func(c *Config) { c.Codec.DefaultOutput = "jpeg" },
			wantErr: true,
			errMsg:  "invalid default output",
		},
		{
			name:    "rate limit disabled ignores rate",
			mutate:  func(c *Config) { c.Security.EnableRateLimit = false; c.Security.RateLimitPerMinute = 0 },
			wantErr: false,
		},
		{
			name:    "rate limit without rate",
			mutate:  func(c *Config) { c.Security.RateLimitPerMinute = 0 },
			wantErr: true,
			errMsg:  "rate limit per minute must be positive",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "invalid" },
			wantErr: true,
			errMsg:  "invalid log level",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
			errMsg:  "invalid log format",
		},
		{
			name:    "TLS enabled without certs",
			mutate:  func(c *Config) { c.Security.EnableTLS = true },
			wantErr: true,
			errMsg:  "TLS certificate and key files must be specified",
		},
		{
			name: "TLS cert file missing",
			mutate: func(c *Config) {
				c.Security.EnableTLS = true
				c.Security.TLSCertFile = "/nonexistent/cert.pem"
				c.Security.TLSKeyFile = "/nonexistent/key.pem"
			},
			wantErr: true,
			errMsg:  "TLS certificate file does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		assert.Equal(t, "default", getEnvWithDefault("TEST_CONFIG_VAR", "default"))
		t.Setenv("TEST_CONFIG_VAR", "value")
		assert.Equal(t, "value", getEnvWithDefault("TEST_CONFIG_VAR", "default"))
	})

	t.Run("int", func(t *testing.T) {
		assert.Equal(t, 42, getIntWithDefault("TEST_INT_VAR", 42))
		t.Setenv("TEST_INT_VAR", "100")
		assert.Equal(t, 100, getIntWithDefault("TEST_INT_VAR", 42))
		t.Setenv("TEST_INT_VAR", "invalid")
		assert.Equal(t, 42, getIntWithDefault("TEST_INT_VAR", 42))
	})

	t.Run("int64", func(t *testing.T) {
		t.Setenv("TEST_INT64_VAR", "8589934592")
		assert.Equal(t, int64(8589934592), getInt64WithDefault("TEST_INT64_VAR", 1))
		t.Setenv("TEST_INT64_VAR", "1.5")
		assert.Equal(t, int64(1), getInt64WithDefault("TEST_INT64_VAR", 1))
	})

	t.Run("bool", func(t *testing.T) {
		assert.False(t, getBoolWithDefault("TEST_BOOL_VAR", false))
		t.Setenv("TEST_BOOL_VAR", "true")
		assert.True(t, getBoolWithDefault("TEST_BOOL_VAR", false))
		t.Setenv("TEST_BOOL_VAR", "invalid")
		assert.False(t, getBoolWithDefault("TEST_BOOL_VAR", false))
	})

	t.Run("duration", func(t *testing.T) {
		t.Setenv("TEST_DURATION_VAR", "60s")
		assert.Equal(t, 60*time.Second, getDurationWithDefault("TEST_DURATION_VAR", time.Second))
		t.Setenv("TEST_DURATION_VAR", "invalid")
		assert.Equal(t, time.Second, getDurationWithDefault("TEST_DURATION_VAR", time.Second))
	})

	t.Run("override", func(t *testing.T) {
		t.Setenv("TEST_OVERRIDE_VAR", "env")
		assert.Equal(t, "flag", getOverrideOrEnv("flag", "TEST_OVERRIDE_VAR", "default"))
		assert.Equal(t, "env", getOverrideOrEnv("", "TEST_OVERRIDE_VAR", "default"))
	})
}

func TestSplitString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"normal comma separation", "a,b,c", []string{"a", "b", "c"}},
		{"with whitespace", "a, b , c", []string{"a", "b", "c"}},
		{"empty input", "", []string{}},
		{"empty elements", "a,,c", []string{"a", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, splitString(tt.input, ","))
		})
	}
}
