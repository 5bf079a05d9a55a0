// Package config loads chunkscribe settings from the user config file and
// CHUNKSCRIBE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config keys, as written in config.yaml and on the command line.
const (
	KeyOutputDir      = "output-dir"
	KeyProvider       = "provider"
	KeyLanguage       = "language"
	KeyParallel       = "parallel"
	KeyLogLevel       = "log-level"
	KeyLogFormat      = "log-format"
	KeyCacheDir       = "cache-dir"
	KeyRedisURL       = "redis-url"
	KeyRateLimitDelay = "rate-limit-delay"
)

// EnvPrefix prefixes environment overrides: CHUNKSCRIBE_OUTPUT_DIR, ...
const EnvPrefix = "CHUNKSCRIBE"

const (
	appName  = "chunkscribe"
	fileName = "config.yaml"

	defaultLogLevel       = "warn"
	defaultLogFormat      = "console"
	defaultRateLimitDelay = 10 * time.Second
)

// ErrUnknownKey indicates a key that is not a config setting.
var ErrUnknownKey = errors.New("unknown config key")

// ErrInvalidValue indicates a value rejected by validation.
var ErrInvalidValue = errors.New("invalid config value")

// Config holds user configuration.
type Config struct {
	OutputDir      string        `mapstructure:"output-dir"`
	Provider       string        `mapstructure:"provider" validate:"omitempty,oneof=gemini groq openai"`
	Language       string        `mapstructure:"language" validate:"omitempty,bcp47_language_tag"`
	Parallel       int           `mapstructure:"parallel" validate:"gte=0,lte=10"`
	LogLevel       string        `mapstructure:"log-level" validate:"omitempty,oneof=trace debug info warn error disabled"`
	LogFormat      string        `mapstructure:"log-format" validate:"omitempty,oneof=console pretty json"`
	CacheDir       string        `mapstructure:"cache-dir"`
	RedisURL       string        `mapstructure:"redis-url" validate:"omitempty,url"`
	RateLimitDelay time.Duration `mapstructure:"rate-limit-delay"`
}

// keyTags holds the validation rule of each settable key.
var keyTags = map[string]string{
	KeyOutputDir:      "",
	KeyProvider:       "oneof=gemini groq openai",
	KeyLanguage:       "bcp47_language_tag",
	KeyParallel:       "gte=0,lte=10",
	KeyLogLevel:       "oneof=trace debug info warn error disabled",
	KeyLogFormat:      "oneof=console pretty json",
	KeyCacheDir:       "",
	KeyRedisURL:       "url",
	KeyRateLimitDelay: "",
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Keys returns the settable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(keyTags))
	for k := range keyTags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// dir returns the configuration directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/chunkscribe.
func dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// Path returns the full path to the config file.
func Path() (string, error) {
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, fileName), nil
}

// DefaultCacheDir is where chunks and checkpoints live when cache-dir is unset.
func DefaultCacheDir() string {
	if d, err := os.UserCacheDir(); err == nil {
		return filepath.Join(d, appName)
	}
	return filepath.Join(os.TempDir(), appName)
}

// newViper returns a viper instance with defaults and environment
// bindings. The file at p is read when it exists.
func newViper(p string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(p)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyOutputDir, "")
	v.SetDefault(KeyProvider, "")
	v.SetDefault(KeyLanguage, "")
	v.SetDefault(KeyParallel, 0)
	v.SetDefault(KeyLogLevel, defaultLogLevel)
	v.SetDefault(KeyLogFormat, defaultLogFormat)
	v.SetDefault(KeyCacheDir, DefaultCacheDir())
	v.SetDefault(KeyRedisURL, "")
	v.SetDefault(KeyRateLimitDelay, defaultRateLimitDelay)

	if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return v, nil
}

// Load reads the configuration file and environment variables.
// Precedence: environment, then config file, then defaults.
// A missing file is not an error.
func Load() (Config, error) {
	p, err := Path()
	if err != nil {
		return Config{}, err
	}
	return LoadFile(p)
}

// LoadFile is Load for an explicit file path.
func LoadFile(p string) (Config, error) {
	v, err := newViper(p)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.OutputDir = ExpandPath(cfg.OutputDir)
	cfg.CacheDir = ExpandPath(cfg.CacheDir)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field against its rule.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%w: %s=%v (%s)", ErrInvalidValue, fieldKey(e.StructField()), e.Value(), e.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if c.RateLimitDelay < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidValue, KeyRateLimitDelay)
	}
	return nil
}

// fieldKey maps a Config field name back to its key.
func fieldKey(field string) string {
	switch field {
	case "OutputDir":
		return KeyOutputDir
	case "Provider":
		return KeyProvider
	case "Language":
		return KeyLanguage
	case "Parallel":
		return KeyParallel
	case "LogLevel":
		return KeyLogLevel
	case "LogFormat":
		return KeyLogFormat
	case "CacheDir":
		return KeyCacheDir
	case "RedisURL":
		return KeyRedisURL
	case "RateLimitDelay":
		return KeyRateLimitDelay
	}
	return field
}

// ValidateValue checks a single key=value before it is saved.
func ValidateValue(key, value string) error {
	tag, ok := keyTags[key]
	if !ok {
		return fmt.Errorf("%w: %s (valid: %s)", ErrUnknownKey, key, strings.Join(Keys(), ", "))
	}

	switch key {
	case KeyParallel:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer (got %q)", ErrInvalidValue, key, value)
		}
		if err := validate.Var(n, tag); err != nil {
			return fmt.Errorf("%w: %s must be between 0 and 10 (got %d)", ErrInvalidValue, key, n)
		}
		return nil
	case KeyRateLimitDelay:
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			return fmt.Errorf("%w: %s must be a duration like 10s (got %q)", ErrInvalidValue, key, value)
		}
		return nil
	case KeyOutputDir:
		return ValidOutputDir(value)
	}

	if tag == "" {
		return nil
	}
	if err := validate.Var(value, tag); err != nil {
		return fmt.Errorf("%w: %s=%q (%s)", ErrInvalidValue, key, value, tag)
	}
	return nil
}

// Save validates and writes a single key to the config file.
// Creates the config directory and file if they don't exist.
func Save(key, value string) error {
	if err := ValidateValue(key, value); err != nil {
		return err
	}

	p, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil { // #nosec G301 -- user config dir
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	v, err := fileViper(p)
	if err != nil {
		return err
	}
	v.Set(key, value)
	if err := v.WriteConfigAs(p); err != nil {
		return fmt.Errorf("cannot write config file: %w", err)
	}
	return nil
}

// Get reads a single value from the config file.
// Returns empty string if the key doesn't exist.
func Get(key string) (string, error) {
	if _, ok := keyTags[key]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	values, err := List()
	if err != nil {
		return "", err
	}
	return values[key], nil
}

// List returns the values set in the config file. Defaults and
// environment overrides are not included.
func List() (map[string]string, error) {
	p, err := Path()
	if err != nil {
		return nil, err
	}
	v, err := fileViper(p)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string)
	for _, k := range v.AllKeys() {
		if slices.Contains(Keys(), k) {
			out[k] = v.GetString(k)
		}
	}
	return out, nil
}

// fileViper reads only the file at p, without defaults or environment.
func fileViper(p string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(p)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return v, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// ResolveOutputPath resolves the final output path using the following precedence:
//  1. If output is absolute, use it as-is
//  2. If output is relative and outputDir is set, join them
//  3. If output is empty, use defaultName in outputDir (or cwd if no outputDir)
func ResolveOutputPath(output, outputDir, defaultName string) string {
	if output != "" && filepath.IsAbs(output) {
		return filepath.Clean(output)
	}

	if output != "" {
		if outputDir != "" {
			return filepath.Clean(filepath.Join(outputDir, output))
		}
		return filepath.Clean(output)
	}

	if outputDir != "" {
		return filepath.Clean(filepath.Join(outputDir, defaultName))
	}
	return filepath.Clean(defaultName)
}

// ValidOutputDir checks if a directory path is valid for use as output-dir.
// A missing directory is created.
func ValidOutputDir(d string) error {
	if d == "" {
		return fmt.Errorf("%w: output-dir cannot be empty", ErrInvalidValue)
	}
	d = ExpandPath(d)

	info, err := os.Stat(d)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(d, 0o750); err != nil { // #nosec G301 -- user output dir
				return fmt.Errorf("cannot create directory: %w", err)
			}
			return nil
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: path is not a directory: %s", ErrInvalidValue, d)
	}

	testFile := filepath.Join(d, ".chunkscribe-write-test")
	f, err := os.Create(testFile) // #nosec G304 -- path is constructed from validated dir
	if err != nil {
		return fmt.Errorf("directory is not writable: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(testFile)
		return fmt.Errorf("directory is not writable: %w", err)
	}
	_ = os.Remove(testFile)

	return nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
	}
	return p
}
