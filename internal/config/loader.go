package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/example/class-scheduler/internal/access"
	"github.com/example/class-scheduler/internal/application"
	"github.com/example/class-scheduler/internal/attendance"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SCHEDULER"

// DefaultEnvFile is the optional dotenv file read by Load.
const DefaultEnvFile = ".env"

// Config captures environment driven configuration values for the scheduler service.
type Config struct {
	HTTPPort               int
	SQLiteDSN              string
	JWTSecret              string
	Location               *time.Location
	LogLevel               slog.Level
	Attendance             attendance.Policy
	JoinWindow             access.JoinWindow
	CompletionGrace        time.Duration
	ValidateAllOccurrences bool
	RoomCacheSize          int
	ShutdownTimeout        time.Duration
}

// ScheduleOptions converts the configuration into schedule service options.
func (c Config) ScheduleOptions() application.ScheduleOptions {
	return application.ScheduleOptions{
		JoinWindow:             c.JoinWindow,
		CompletionGrace:        c.CompletionGrace,
		ValidateAllOccurrences: c.ValidateAllOccurrences,
		RoomIndexSize:          c.RoomCacheSize,
		Policy:                 c.Attendance,
	}
}

// Load reads DefaultEnvFile when present and then the process environment.
func Load() (Config, error) {
	return LoadFile(DefaultEnvFile)
}

// LoadFile reads the dotenv file at path when it exists, then parses
// configuration from the environment. Variables already present in the
// environment take precedence over the file.
//
// Missing required values and malformed values are reported together.
func LoadFile(path string) (Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return Config{}, fmt.Errorf("read %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("stat %s: %w", path, err)
		}
	}

	v := newViper()
	var cfg Config
	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)
	envKey := func(key string) string { return EnvPrefix + "_" + strings.ToUpper(key) }

	port, err := cast.ToIntE(v.Get("http_port"))
	if err != nil || port <= 0 || port > 65535 {
		invalid = append(invalid, envKey("http_port"))
	}
	cfg.HTTPPort = port

	cfg.SQLiteDSN = strings.TrimSpace(v.GetString("sqlite_dsn"))
	if cfg.SQLiteDSN == "" {
		invalid = append(invalid, envKey("sqlite_dsn"))
	}

	cfg.JWTSecret = strings.TrimSpace(v.GetString("jwt_secret"))
	if cfg.JWTSecret == "" {
		missing = append(missing, envKey("jwt_secret"))
	}

	location, err := time.LoadLocation(strings.TrimSpace(v.GetString("timezone")))
	if err != nil {
		invalid = append(invalid, envKey("timezone"))
	}
	cfg.Location = location

	if err := cfg.LogLevel.UnmarshalText([]byte(strings.TrimSpace(v.GetString("log_level")))); err != nil {
		invalid = append(invalid, envKey("log_level"))
	}

	presentRatio, err := cast.ToFloat64E(v.Get("present_ratio"))
	if err != nil || presentRatio <= 0 || presentRatio > 1 {
		invalid = append(invalid, envKey("present_ratio"))
	}
	partialRatio, err := cast.ToFloat64E(v.Get("partial_ratio"))
	if err != nil || partialRatio < 0 || partialRatio > presentRatio {
		invalid = append(invalid, envKey("partial_ratio"))
	}
	partialSeconds, err := cast.ToIntE(v.Get("partial_min_seconds"))
	if err != nil || partialSeconds < 0 {
		invalid = append(invalid, envKey("partial_min_seconds"))
	}
	cfg.Attendance = attendance.Policy{
		PresentRatio:   presentRatio,
		PartialRatio:   partialRatio,
		PartialMinimum: time.Duration(partialSeconds) * time.Second,
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{key: "join_early_window", target: &cfg.JoinWindow.Early},
		{key: "join_late_window", target: &cfg.JoinWindow.Late},
		{key: "completion_grace", target: &cfg.CompletionGrace},
		{key: "shutdown_timeout", target: &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		value, err := cast.ToDurationE(v.Get(d.key))
		if err != nil || value < 0 {
			invalid = append(invalid, envKey(d.key))
			continue
		}
		*d.target = value
	}

	validateAll, err := cast.ToBoolE(v.Get("validate_all_occurrences"))
	if err != nil {
		invalid = append(invalid, envKey("validate_all_occurrences"))
	}
	cfg.ValidateAllOccurrences = validateAll

	cacheSize, err := cast.ToIntE(v.Get("room_cache_size"))
	if err != nil || cacheSize <= 0 {
		invalid = append(invalid, envKey("room_cache_size"))
	}
	cfg.RoomCacheSize = cacheSize

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("http_port", 8080)
	v.SetDefault("sqlite_dsn", "file:scheduler.db")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("log_level", "info")
	v.SetDefault("present_ratio", 0.5)
	v.SetDefault("partial_ratio", 0.10)
	v.SetDefault("partial_min_seconds", 120)
	v.SetDefault("join_early_window", "10m")
	v.SetDefault("join_late_window", "5m")
	v.SetDefault("completion_grace", "15m")
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("validate_all_occurrences", true)
	v.SetDefault("room_cache_size", 1024)
	return v
}
