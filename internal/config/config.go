package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr     = ":8080"
	defaultDBPath         = "deferrpc.db"
	defaultAppEnv         = "dev"
	defaultWorkers        = 2
	defaultQueueSize      = 1024
	defaultCacheTTL       = time.Hour
	defaultCacheCodec     = "json"
	defaultResultKeepDays = 1
	defaultPurgeInterval  = 24 * time.Hour
	defaultTaskTimeout    = 5 * time.Minute

	envListenAddr     = "DEFERRPC_LISTEN_ADDR"
	envDBPath         = "DEFERRPC_DB_PATH"
	envLogLevel       = "DEFERRPC_LOG_LEVEL"
	envAppEnv         = "APP_ENV"
	envAsyncMethods   = "DEFERRPC_ASYNC_METHODS"
	envWorkers        = "DEFERRPC_WORKERS"
	envQueueSize      = "DEFERRPC_QUEUE_SIZE"
	envCacheTTL       = "DEFERRPC_CACHE_TTL"
	envCacheCodec     = "DEFERRPC_CACHE_CODEC"
	envResultKeepDays = "DEFERRPC_RESULT_KEEP_DAYS"
	envPurgeInterval  = "DEFERRPC_PURGE_INTERVAL"
	envTaskTimeout    = "DEFERRPC_TASK_TIMEOUT"

	// Legacy names still honoured.
	envPersistDayNum      = "ASYNC_RESULT_PERSIST_DAY_NUM"
	envMethodOverrideBase = "JSON_REQUEST_ASYNC_"

	productionEnv = "prod"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	// AppEnv names the deployment environment. Deferral only happens in prod.
	AppEnv string
	// AsyncMethods lists methods that are always deferred.
	AsyncMethods map[string]bool

	Workers        int
	QueueSize      int
	CacheTTL       time.Duration
	CacheCodec     string
	ResultKeepDays int
	PurgeInterval  time.Duration
	// TaskTimeout bounds a single deferred execution.
	TaskTimeout time.Duration
}

// Production reports whether deferral is enabled.
func (c Config) Production() bool {
	return c.AppEnv == productionEnv
}

// ResultRetention returns how long committed results are kept.
func (c Config) ResultRetention() time.Duration {
	return time.Duration(c.ResultKeepDays) * 24 * time.Hour
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:     defaultListenAddr,
		DBPath:         defaultDBPath,
		LogLevel:       slog.LevelInfo,
		AppEnv:         defaultAppEnv,
		Workers:        defaultWorkers,
		QueueSize:      defaultQueueSize,
		CacheTTL:       defaultCacheTTL,
		CacheCodec:     defaultCacheCodec,
		ResultKeepDays: defaultResultKeepDays,
		PurgeInterval:  defaultPurgeInterval,
		TaskTimeout:    defaultTaskTimeout,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envAppEnv); v != "" {
		cfg.AppEnv = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(envCacheCodec); v != "" {
		cfg.CacheCodec = strings.ToLower(v)
	}

	cfg.Workers = positiveInt(os.Getenv(envWorkers), cfg.Workers)
	cfg.QueueSize = positiveInt(os.Getenv(envQueueSize), cfg.QueueSize)
	cfg.CacheTTL = positiveDuration(os.Getenv(envCacheTTL), cfg.CacheTTL)
	cfg.PurgeInterval = positiveDuration(os.Getenv(envPurgeInterval), cfg.PurgeInterval)
	cfg.TaskTimeout = positiveDuration(os.Getenv(envTaskTimeout), cfg.TaskTimeout)
	cfg.ResultKeepDays = positiveInt(os.Getenv(envPersistDayNum), cfg.ResultKeepDays)
	cfg.ResultKeepDays = positiveInt(os.Getenv(envResultKeepDays), cfg.ResultKeepDays)

	cfg.AsyncMethods = asyncMethods(os.Getenv(envAsyncMethods), os.Environ())

	return cfg
}

// asyncMethods merges the comma-separated list with every
// JSON_REQUEST_ASYNC_<method> variable in environ. A per-method variable set
// to a false boolean ("0", "false") switches the method off.
func asyncMethods(list string, environ []string) map[string]bool {
	methods := make(map[string]bool)
	for _, m := range strings.Split(list, ",") {
		if m = strings.TrimSpace(m); m != "" {
			methods[m] = true
		}
	}

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, envMethodOverrideBase) {
			continue
		}
		method := strings.TrimPrefix(key, envMethodOverrideBase)
		if method == "" {
			continue
		}
		if on, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil && !on {
			delete(methods, method)
			continue
		}
		methods[method] = true
	}
	return methods
}

func positiveInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func positiveDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
