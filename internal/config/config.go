package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Protocol selects the wire protocol a server instance speaks. It is fixed
// at construction and never changes for the lifetime of the server.
type Protocol string

const (
	ProtocolREST Protocol = "rest"
	ProtocolRPC  Protocol = "rpc"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Protocol Protocol `json:"protocol" yaml:"protocol" toml:"protocol"`
	Host     string   `json:"host" yaml:"host" toml:"host"`
	Port     int      `json:"port" yaml:"port" toml:"port"`
	Workers  int      `json:"workers" yaml:"workers" toml:"workers"`

	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
	MaxBatchSize   int `json:"max_batch_size" yaml:"max_batch_size" toml:"max_batch_size"`

	AuthEnabled bool     `json:"auth_enabled" yaml:"auth_enabled" toml:"auth_enabled"`
	APIKeys     []string `json:"api_keys" yaml:"api_keys" toml:"api_keys"`

	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`

	RateLimitEnabled   bool `json:"rate_limit_enabled" yaml:"rate_limit_enabled" toml:"rate_limit_enabled"`
	RateLimitPerMinute int  `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute" toml:"rate_limit_per_minute"`

	ModelPath string `json:"model_path" yaml:"model_path" toml:"model_path"`
	ModelType string `json:"model_type" yaml:"model_type" toml:"model_type"`
	ModelID   string `json:"model_id" yaml:"model_id" toml:"model_id"`

	EnableTLS bool   `json:"enable_tls" yaml:"enable_tls" toml:"enable_tls"`
	CertFile  string `json:"cert_file" yaml:"cert_file" toml:"cert_file"`
	KeyFile   string `json:"key_file" yaml:"key_file" toml:"key_file"`

	// RPC-only knobs.
	EnableReflection     bool `json:"enable_reflection" yaml:"enable_reflection" toml:"enable_reflection"`
	EnableHealthChecking bool `json:"enable_health_checking" yaml:"enable_health_checking" toml:"enable_health_checking"`
	MaxMessageMB         int  `json:"max_message_mb" yaml:"max_message_mb" toml:"max_message_mb"`
	MaxConcurrentStreams int  `json:"max_concurrent_streams" yaml:"max_concurrent_streams" toml:"max_concurrent_streams"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFile  string `json:"log_file" yaml:"log_file" toml:"log_file"`
}

// configError marks fatal configuration problems detected at startup.
type configError struct{ msg string }

func (e configError) Error() string { return "config: " + e.msg }

// Errorf constructs a configuration error.
func Errorf(format string, args ...any) error {
	return configError{msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is a fatal configuration error.
func IsConfigError(err error) bool {
	_, ok := err.(configError)
	return ok
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Merge overlays non-zero fields of o onto c and returns the result.
// Explicit overrides (CLI flags) win over file values. Boolean fields are
// enable-only: a false override cannot switch off a file-enabled toggle,
// because false is indistinguishable from "not set". Disabling a toggle
// means editing the file (or not enabling it there to begin with).
func Merge(c, o Config) Config {
	if o.Protocol != "" {
		c.Protocol = o.Protocol
	}
	if o.Host != "" {
		c.Host = o.Host
	}
	if o.Port != 0 {
		c.Port = o.Port
	}
	if o.Workers != 0 {
		c.Workers = o.Workers
	}
	if o.TimeoutSeconds != 0 {
		c.TimeoutSeconds = o.TimeoutSeconds
	}
	if o.MaxBatchSize != 0 {
		c.MaxBatchSize = o.MaxBatchSize
	}
	if o.AuthEnabled {
		c.AuthEnabled = true
	}
	if len(o.APIKeys) > 0 {
		c.APIKeys = append([]string(nil), o.APIKeys...)
	}
	if len(o.CORSOrigins) > 0 {
		c.CORSOrigins = append([]string(nil), o.CORSOrigins...)
	}
	if o.RateLimitEnabled {
		c.RateLimitEnabled = true
	}
	if o.RateLimitPerMinute != 0 {
		c.RateLimitPerMinute = o.RateLimitPerMinute
	}
	if o.ModelPath != "" {
		c.ModelPath = o.ModelPath
	}
	if o.ModelType != "" {
		c.ModelType = o.ModelType
	}
	if o.ModelID != "" {
		c.ModelID = o.ModelID
	}
	if o.EnableTLS {
		c.EnableTLS = true
	}
	if o.CertFile != "" {
		c.CertFile = o.CertFile
	}
	if o.KeyFile != "" {
		c.KeyFile = o.KeyFile
	}
	if o.EnableReflection {
		c.EnableReflection = true
	}
	if o.EnableHealthChecking {
		c.EnableHealthChecking = true
	}
	if o.MaxMessageMB != 0 {
		c.MaxMessageMB = o.MaxMessageMB
	}
	if o.MaxConcurrentStreams != 0 {
		c.MaxConcurrentStreams = o.MaxConcurrentStreams
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.LogFile != "" {
		c.LogFile = o.LogFile
	}
	return c
}

// ApplyDefaults fills unspecified fields with serving defaults.
func ApplyDefaults(c Config) Config {
	if c.Protocol == "" {
		c.Protocol = ProtocolREST
	}
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 60
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = 8
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if c.MaxMessageMB == 0 {
		c.MaxMessageMB = 16
	}
	if c.MaxConcurrentStreams == 0 {
		c.MaxConcurrentStreams = 128
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ModelType == "" {
		c.ModelType = "llama"
	}
	return c
}

// Validate rejects configurations the server cannot start with.
func Validate(c Config) error {
	switch c.Protocol {
	case ProtocolREST, ProtocolRPC:
	default:
		return Errorf("unknown protocol %q (want %q or %q)", c.Protocol, ProtocolREST, ProtocolRPC)
	}
	if c.Port < 0 || c.Port > 65535 {
		return Errorf("port %d out of range", c.Port)
	}
	if c.AuthEnabled && len(c.APIKeys) == 0 {
		return Errorf("auth enabled but no api keys configured")
	}
	if c.RateLimitEnabled && c.RateLimitPerMinute <= 0 {
		return Errorf("rate limit enabled but rate_limit_per_minute is %d", c.RateLimitPerMinute)
	}
	if c.EnableTLS {
		if c.CertFile == "" || c.KeyFile == "" {
			return Errorf("tls enabled but cert_file/key_file missing")
		}
	}
	if c.ModelPath == "" && c.ModelType != "echo" {
		return Errorf("model_path is required for model_type %q", c.ModelType)
	}
	return nil
}

// Finalize merges overrides into file, applies defaults and validates.
// The returned Config is treated as immutable by every consumer.
func Finalize(file, overrides Config) (Config, error) {
	cfg := ApplyDefaults(Merge(file, overrides))
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Addr returns the host:port the server binds to.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
