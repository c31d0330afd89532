package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads envFiles (".env" when none are given) into the process
// environment without overriding variables that are already set, then
// builds a Config from the environment on top of Default(). Missing env
// files are not an error; malformed values are.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables on top of Default().
// Unset variables keep their defaults. Every variable that is set but does
// not parse is reported in the returned error, and the Config then carries
// the default for it.
func FromEnv() (Config, error) {
	d := Default()
	var e envReader
	cfg := Config{
		HTTPAddr:        e.str("HTTP_ADDR", d.HTTPAddr),
		ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", d.ShutdownTimeout),
		MaxUploadBytes:  e.int64("MAX_UPLOAD_BYTES", d.MaxUploadBytes),
		MaxPixels:       e.int64("MAX_PIXELS", d.MaxPixels),
		TargetFormats:   e.list("TARGET_FORMATS"),
		DefaultQuality:  e.int("DEFAULT_QUALITY", d.DefaultQuality),
		WorkerCount:     e.int("WORKER_COUNT", d.WorkerCount),
		QueueSize:       e.int("QUEUE_SIZE", d.QueueSize),
		Codec:           CodecBackend(strings.ToLower(e.str("CODEC_BACKEND", string(d.Codec)))),
		Storage:         StorageBackend(strings.ToLower(e.str("STORE_BACKEND", string(d.Storage)))),
		ResultTTL:       e.duration("RESULT_TTL", d.ResultTTL),
		SweepInterval:   e.duration("SWEEP_INTERVAL", d.SweepInterval),
		MaxEntries:      e.int("STORE_MAX_ENTRIES", d.MaxEntries),
		MaxStoredBytes:  e.int64("STORE_MAX_BYTES", d.MaxStoredBytes),
		Redis: RedisConfig{
			Addr:     e.str("REDIS_ADDR", d.Redis.Addr),
			Password: e.str("REDIS_PASSWORD", d.Redis.Password),
			DB:       e.int("REDIS_DB", d.Redis.DB),
			Prefix:   e.str("REDIS_PREFIX", d.Redis.Prefix),
		},
		Local: LocalConfig{
			RootDir:     e.str("LOCAL_ROOT_DIR", d.Local.RootDir),
			Permissions: d.Local.Permissions,
		},
		S3: S3Config{
			Bucket:    e.str("S3_BUCKET", d.S3.Bucket),
			Region:    e.strWithFallback("S3_REGION", "AWS_DEFAULT_REGION", d.S3.Region),
			Endpoint:  e.str("S3_ENDPOINT", d.S3.Endpoint),
			AccessKey: e.strWithFallback("S3_ACCESS_KEY", "AWS_ACCESS_KEY_ID", ""),
			SecretKey: e.strWithFallback("S3_SECRET_KEY", "AWS_SECRET_ACCESS_KEY", ""),
			UseSSL:    e.bool("S3_USE_SSL", d.S3.UseSSL),
		},
		LogLevel:  e.str("LOG_LEVEL", d.LogLevel),
		LogFormat: e.str("LOG_FORMAT", d.LogFormat),
	}
	return cfg, errors.Join(e.errs...)
}

// envReader reads typed environment values and collects parse failures.
type envReader struct {
	errs []error
}

func (e *envReader) fail(key, value, want string) {
	e.errs = append(e.errs, fmt.Errorf("config: %s=%q is not a valid %s", key, value, want))
}

func (e *envReader) str(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func (e *envReader) strWithFallback(primaryKey, secondaryKey, fallback string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	return e.str(secondaryKey, fallback)
}

func (e *envReader) int(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		e.fail(key, value, "integer")
		return fallback
	}
	return v
}

func (e *envReader) int64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		e.fail(key, value, "integer")
		return fallback
	}
	return v
}

// duration accepts Go durations ("90s", "24h") or plain seconds.
func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	e.fail(key, value, "duration")
	return fallback
}

func (e *envReader) bool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	e.fail(key, value, "boolean")
	return fallback
}

func (e *envReader) list(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
