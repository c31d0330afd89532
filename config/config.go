package config

import (
	"errors"
	"fmt"
	"time"
)

// StorageBackend selects the result store implementation.
type StorageBackend string

const (
	StoreMemory StorageBackend = "memory"
	StoreRedis  StorageBackend = "redis"
	StoreLocal  StorageBackend = "local"
	StoreS3     StorageBackend = "s3"
)

// CodecBackend selects the decoder/encoder set registered at startup.
type CodecBackend string

const (
	CodecStdlib CodecBackend = "stdlib"
	CodecVips   CodecBackend = "vips"
)

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Default() and override only what they need.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	// Input limits.
	MaxUploadBytes int64 // request bodies above this are rejected
	MaxPixels      int64 // width*height above this is rejected; 0 = no limit

	// TargetFormats restricts the accepted output formats. Empty means every
	// format the codec backend can encode.
	TargetFormats []string

	// Default encode options applied when a request does not override them.
	DefaultQuality int // 1-100; default 85

	// Worker pool controls for the CPU-bound conversion stage.
	WorkerCount int // default: runtime.NumCPU()
	QueueSize   int // max queued conversions before backpressure; default: 256

	Codec CodecBackend

	// Result store.
	Storage        StorageBackend
	ResultTTL      time.Duration // 0 = results never expire
	SweepInterval  time.Duration
	MaxEntries     int   // memory store only; 0 = unbounded
	MaxStoredBytes int64 // memory store only; 0 = unbounded
	Redis          RedisConfig
	Local          LocalConfig
	S3             S3Config

	// Logging.
	LogLevel  string // "debug", "info", "warn", "error"
	LogFormat string // "json" or "text"
}

// RedisConfig configures the Redis result store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// LocalConfig configures the local filesystem storage adapter.
type LocalConfig struct {
	RootDir     string
	Permissions uint32 // default 0644
}

// S3Config configures the S3-compatible storage adapter.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // host[:port] of AWS S3, MinIO, etc.
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		HTTPAddr:        ":4003",
		ShutdownTimeout: 10 * time.Second,
		MaxUploadBytes:  10 * 1024 * 1024,
		MaxPixels:       50_000_000,
		DefaultQuality:  85,
		WorkerCount:     0, // resolved at runtime to NumCPU
		QueueSize:       256,
		Codec:           CodecStdlib,
		Storage:         StoreMemory,
		SweepInterval:   time.Minute,
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "imgconvert:",
		},
		Local: LocalConfig{
			RootDir:     "./data/results",
			Permissions: 0o644,
		},
		S3: S3Config{
			Bucket: "conversions",
			Region: "us-east-1",
			UseSSL: true,
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("config: HTTPAddr must not be empty"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("config: MaxUploadBytes must be positive"))
	}
	if c.MaxPixels < 0 {
		errs = append(errs, errors.New("config: MaxPixels must not be negative"))
	}
	if c.DefaultQuality < 1 || c.DefaultQuality > 100 {
		errs = append(errs, errors.New("config: DefaultQuality must be between 1 and 100"))
	}
	if c.QueueSize < 0 || c.WorkerCount < 0 {
		errs = append(errs, errors.New("config: WorkerCount and QueueSize must not be negative"))
	}
	if c.ResultTTL < 0 {
		errs = append(errs, errors.New("config: ResultTTL must not be negative"))
	}
	if c.ResultTTL > 0 && c.SweepInterval <= 0 {
		errs = append(errs, errors.New("config: SweepInterval must be positive when ResultTTL is set"))
	}
	switch c.Codec {
	case CodecStdlib, CodecVips:
	default:
		errs = append(errs, fmt.Errorf("config: unknown codec backend %q", c.Codec))
	}
	switch c.Storage {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("config: Redis.Addr is required for the redis store"))
		}
	case StoreLocal:
		if c.Local.RootDir == "" {
			errs = append(errs, errors.New("config: Local.RootDir is required for the local store"))
		}
	case StoreS3:
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			errs = append(errs, errors.New("config: S3.Endpoint and S3.Bucket are required for the s3 store"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown storage backend %q", c.Storage))
	}
	return errors.Join(errs...)
}
