package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mohammadanang/video-upload-api/domain"
)

type Config struct {
	Host string
	Port string

	UploadDir      string
	UploadFilename string
	Mode           domain.StoreMode
	MaxUploadBytes int

	RateLimitMax    int
	RateLimitWindow time.Duration

	LogLevel        string
	ShutdownTimeout time.Duration
}

// Addr returns the listen address in host:port form.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Destination is the path uploads land on in overwrite mode.
func (c Config) Destination() string {
	return filepath.Join(c.UploadDir, c.UploadFilename)
}

// Load reads an optional .env file and then the process environment.
// Values already present in the environment win over the file.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function such as os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := Config{
		Host:           get("HOST", "0.0.0.0"),
		Port:           get("PORT", "5000"),
		UploadDir:      get("UPLOAD_DIR", "./uploads"),
		UploadFilename: get("UPLOAD_FILENAME", "uploaded_video.mp4"),
		Mode:           domain.StoreMode(strings.ToLower(get("UPLOAD_MODE", string(domain.ModeOverwrite)))),
		LogLevel:       strings.ToLower(get("LOG_LEVEL", "info")),
	}

	if _, err := strconv.ParseUint(cfg.Port, 10, 16); err != nil {
		return Config{}, fmt.Errorf("invalid PORT %q: %w", cfg.Port, err)
	}
	if !cfg.Mode.Valid() {
		return Config{}, fmt.Errorf("invalid UPLOAD_MODE %q: want %q or %q", cfg.Mode, domain.ModeOverwrite, domain.ModeVersioned)
	}
	if err := validateFilename(cfg.UploadFilename); err != nil {
		return Config{}, err
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("invalid LOG_LEVEL %q", cfg.LogLevel)
	}

	rawMB := get("MAX_UPLOAD_MB", strconv.Itoa(domain.DefaultMaxUploadBytes>>20))
	maxMB, err := strconv.Atoi(rawMB)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MAX_UPLOAD_MB %q: %w", rawMB, err)
	}
	if maxMB <= 0 || maxMB > math.MaxInt>>20 {
		return Config{}, fmt.Errorf("invalid MAX_UPLOAD_MB %q: must be between 1 and %d", rawMB, math.MaxInt>>20)
	}
	cfg.MaxUploadBytes = maxMB << 20

	rawLimit := get("RATE_LIMIT_MAX", "0")
	if cfg.RateLimitMax, err = strconv.Atoi(rawLimit); err != nil {
		return Config{}, fmt.Errorf("invalid RATE_LIMIT_MAX %q: %w", rawLimit, err)
	}
	if cfg.RateLimitMax < 0 {
		return Config{}, fmt.Errorf("invalid RATE_LIMIT_MAX %q: must not be negative", rawLimit)
	}
	if cfg.RateLimitWindow, err = parsePositiveDuration("RATE_LIMIT_WINDOW", get("RATE_LIMIT_WINDOW", "10s")); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = parsePositiveDuration("SHUTDOWN_TIMEOUT", get("SHUTDOWN_TIMEOUT", "10s")); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateFilename(name string) error {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid UPLOAD_FILENAME %q: must be a bare file name", name)
	}
	return nil
}

func parsePositiveDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return d, nil
}
