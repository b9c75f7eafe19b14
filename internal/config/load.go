package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CANDSEL_TEMPERATURE or
// CANDSEL_PRIORS_SUCCESS_RATE.
const EnvPrefix = "CANDSEL"

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	configPath string
	envPrefix  string
	overrides  map[string]any
}

// WithConfigPath reads configuration from a specific YAML file.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) {
		o.configPath = path
	}
}

// WithEnvPrefix replaces the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(o *loadOptions) {
		o.envPrefix = prefix
	}
}

// WithOverrides applies caller overrides (dotted keys) that take highest
// precedence, typically from command-line flags.
func WithOverrides(overrides map[string]any) Option {
	return func(o *loadOptions) {
		o.overrides = overrides
	}
}

// Load resolves configuration from defaults, an optional file, the
// environment and overrides, in increasing precedence, and validates it.
func Load(opts ...Option) (Config, error) {
	options := loadOptions{envPrefix: EnvPrefix}
	for _, opt := range opts {
		opt(&options)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(options.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if options.configPath != "" {
		v.SetConfigFile(options.configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("config file %s not found: %w", options.configPath, err)
			}
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	for key, value := range options.overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Criteria) == 0 && !v.IsSet("criteria") {
		cfg.Criteria = DefaultCriteria()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
