// Package config loads the server's static configuration: logging,
// telemetry, storage, and dispatch tunables. It follows the teacher's
// viper setup (a YAML file layered over defaults, with DOCDBD_ environment
// overrides for keys the file sets) and validates the result with
// go-playground/validator before the caller wires it into the server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docdb/docdbd/internal/bytesize"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	AdminAPI AdminAPIConfig `mapstructure:"admin_api" yaml:"admin_api"`

	// Listen is the address the wire-protocol listener binds, e.g. ":27017".
	Listen string `mapstructure:"listen" validate:"required" yaml:"listen"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Dispatch DispatchConfig `mapstructure:"dispatch" yaml:"dispatch"`

	// InstanceLockPath is the on-disk single-instance guard file.
	InstanceLockPath string `mapstructure:"instance_lock_path" validate:"required" yaml:"instance_lock_path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry export and Pyroscope profiling.
type TelemetryConfig struct {
	Enabled    bool             `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string           `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool             `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64          `mapstructure:"sample_rate" validate:"gte=0,lte=1" yaml:"sample_rate"`
	Profiling  ProfilingConfig  `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig controls the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// AdminAPIConfig controls the chi-based administrative HTTP surface.
type AdminAPIConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Port      int    `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

// StorageConfig selects and configures the storage engine.
type StorageConfig struct {
	// Engine is "memtx" or "badger".
	Engine string `mapstructure:"engine" validate:"required,oneof=memtx badger" yaml:"engine"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// DispatchConfig mirrors pkg/dispatch.Config's tunables.
type DispatchConfig struct {
	SlowMS               int64   `mapstructure:"slow_ms" validate:"gte=0" yaml:"slow_ms"`
	DebugMode            bool    `mapstructure:"debug_mode" yaml:"debug_mode"`
	ProfileSampleRate    float64 `mapstructure:"profile_sample_rate" validate:"gte=0,lte=1" yaml:"profile_sample_rate"`
	// MaxUpdateObjectBytes accepts either a plain byte count or a
	// human-readable size such as "16Mi" or "64MB".
	MaxUpdateObjectBytes bytesize.ByteSize `mapstructure:"max_update_object_bytes" validate:"gt=0" yaml:"max_update_object_bytes"`
}

// DefaultConfig returns the configuration used when no file or environment
// override is present.
func DefaultConfig() *Config {
	return &Config{
		Logging:  LoggingConfig{Level: "INFO", Format: "text", Output: "stdout"},
		Telemetry: TelemetryConfig{
			Enabled: false, Endpoint: "localhost:4317", Insecure: true, SampleRate: 1.0,
			Profiling: ProfilingConfig{Enabled: false, Endpoint: "http://localhost:4040", ProfileTypes: []string{"cpu", "alloc_objects"}},
		},
		Metrics:  MetricsConfig{Enabled: true, Port: 9090},
		AdminAPI: AdminAPIConfig{Enabled: false, Port: 8081},
		Listen:   ":27017",
		ShutdownTimeout: 30 * time.Second,
		Storage: StorageConfig{Engine: "badger", Path: filepath.Join(defaultDataDir(), "storage")},
		Dispatch: DispatchConfig{
			SlowMS:               100,
			ProfileSampleRate:    1.0,
			MaxUpdateObjectBytes: 16 * bytesize.MiB,
		},
		InstanceLockPath: filepath.Join(defaultDataDir(), "docdbd.lock"),
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("DOCDBD_DATA_DIR"); dir != "" {
		return dir
	}
	return "/var/lib/docdbd"
}

// Load reads configuration from configPath (or ./docdbd.yaml when configPath
// is empty) over DefaultConfig, then validates the result. A DOCDBD_-prefixed
// environment variable overrides a key only when the file sets that key;
// when no file is found, the defaults are returned and the environment is not
// consulted.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if !found {
		return cfg, Validate(cfg)
	}

	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DOCDBD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("docdbd")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read: %w", err)
	}
	return true, nil
}

var validate = validator.New()

// Validate runs struct-tag validation over cfg, plus the one rule the
// validator tag set can't express: when the admin API is enabled its JWT
// secret must be at least 32 characters, mirroring the teacher's own
// explicit length check on its control-plane JWT secret.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if cfg.AdminAPI.Enabled && len(cfg.AdminAPI.JWTSecret) < 32 {
		return fmt.Errorf("config: admin_api.jwt_secret must be at least 32 characters when admin_api is enabled")
	}
	return nil
}

// SaveConfig writes cfg to path as YAML, using yaml.Marshal directly so the
// struct's yaml tags (rather than viper's own key casing) govern the output.
func SaveConfig(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}

	return nil
}
