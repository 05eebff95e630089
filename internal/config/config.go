package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/the127/resumable/internal/args"
)

const envPrefix = "RESUMABLE_"

type Config struct {
	Client   ClientConfig
	Retry    RetryConfig
	Backoff  BackoffConfig
	Parallel ParallelConfig
	Server   ServerConfig
	Database DatabaseConfig
	Kv       KvConfig
	Blob     BlobStorageConfig
	Session  SessionConfig
}

type ClientConfig struct {
	Endpoint           string
	ChunkSize          int
	DownloadBufferSize int
	Headers            map[string]string
}

type RetryConfig struct {
	MaxFailures int
	MaxDuration time.Duration
}

type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Scaling      float64
}

type ParallelConfig struct {
	MaxStreams            int
	MinStreamSize         int64
	Concurrency           int
	IgnoreCleanupFailures bool
}

type ServerConfig struct {
	Port           int
	Host           string
	ExternalUrl    string
	AllowedOrigins []string
}

type DatabaseMode string

const (
	DatabaseModeInMemory DatabaseMode = "memory"
	DatabaseModePostgres DatabaseMode = "postgres"
)

type DatabaseConfig struct {
	Mode     DatabaseMode
	Postgres PostgresConfig
}

type PostgresConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
	SslMode  string
}

type KvMode string

const (
	KvModeInMemory KvMode = "memory"
	KvModeRedis    KvMode = "redis"
)

type KvConfig struct {
	Mode  KvMode
	Redis struct {
		Host     string
		Port     int
		Username string
		Password string
		Database int
	}
}

type BlobStorageMode string

const (
	BlobStorageModeInMemory  BlobStorageMode = "memory"
	BlobStorageModeDirectory BlobStorageMode = "directory"
)

type BlobStorageConfig struct {
	Mode      BlobStorageMode
	Directory struct {
		Path     string
		TempPath string
	}
}

type SessionConfig struct {
	SigningKey string
	Expiration time.Duration
}

var C Config

func Init() {
	c, err := Load(args.ConfigFilePath())
	if err != nil {
		panic(err)
	}

	C = c
}

// Load reads the optional yaml file at path, overlays RESUMABLE_* environment
// variables and fills in defaults. It panics on invalid combinations like the
// rest of the config layer does.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		_, err := os.Stat(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to stat config file: %w", err)
		}

		err = k.Load(file.Provider(path), yaml.Parser())
		if err != nil {
			return Config{}, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, envPrefix)), "_", ".")

			if strings.Contains(v, " ") {
				return k, strings.Split(v, " ")
			}

			return k, v
		},
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load env provider: %w", err)
	}

	var c Config
	err = k.Unmarshal("", &c)
	if err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaultsOrPanic(&c)
	return c, nil
}

func setDefaultsOrPanic(c *Config) {
	setServerDefaultsOrPanic(c)
	setClientDefaultsOrPanic(c)
	setRetryDefaults(c)
	setBackoffDefaultsOrPanic(c)
	setParallelDefaults(c)
	setDatabaseDefaultsOrPanic(c)
	setKvDefaultsOrPanic(c)
	setBlobDefaultsOrPanic(c)
	setSessionDefaultsOrPanic(c)
}

func setServerDefaultsOrPanic(c *Config) {
	if c.Server.Host == "" {
		if args.IsProduction() {
			panic("Server.Host must be set in production.")
		}

		c.Server.Host = "localhost"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 9023
	}

	if c.Server.ExternalUrl == "" {
		c.Server.ExternalUrl = fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
	}

	_, err := url.Parse(c.Server.ExternalUrl)
	if err != nil {
		panic(fmt.Errorf("failed to parse external url: %w", err))
	}
}

func setClientDefaultsOrPanic(c *Config) {
	if c.Client.Endpoint == "" {
		c.Client.Endpoint = c.Server.ExternalUrl
	}

	if c.Client.ChunkSize == 0 {
		c.Client.ChunkSize = 8 * 1024 * 1024
	}

	if c.Client.ChunkSize%(256*1024) != 0 {
		panic(fmt.Errorf("Client.ChunkSize must be a multiple of 256KiB, got %d", c.Client.ChunkSize))
	}

	if c.Client.DownloadBufferSize == 0 {
		c.Client.DownloadBufferSize = 1024 * 1024
	}
}

func setRetryDefaults(c *Config) {
	if c.Retry.MaxFailures == 0 {
		c.Retry.MaxFailures = 10
	}

	if c.Retry.MaxDuration == 0 {
		c.Retry.MaxDuration = 10 * time.Minute
	}
}

func setBackoffDefaultsOrPanic(c *Config) {
	if c.Backoff.InitialDelay == 0 {
		c.Backoff.InitialDelay = time.Second
	}

	if c.Backoff.MaxDelay == 0 {
		c.Backoff.MaxDelay = 5 * time.Minute
	}

	if c.Backoff.Scaling == 0 {
		c.Backoff.Scaling = 2
	}

	if c.Backoff.Scaling < 1 {
		panic(fmt.Errorf("Backoff.Scaling must be >= 1, got %v", c.Backoff.Scaling))
	}

	if c.Backoff.MaxDelay < c.Backoff.InitialDelay {
		panic("Backoff.MaxDelay must not be smaller than Backoff.InitialDelay.")
	}
}

func setParallelDefaults(c *Config) {
	if c.Parallel.MaxStreams == 0 {
		c.Parallel.MaxStreams = 64
	}

	if c.Parallel.MinStreamSize == 0 {
		c.Parallel.MinStreamSize = 64 * 1024 * 1024
	}

	if c.Parallel.Concurrency == 0 {
		c.Parallel.Concurrency = 8
	}
}

func setDatabaseDefaultsOrPanic(c *Config) {
	if c.Database.Mode == "" {
		if args.IsProduction() {
			panic("Database.Mode must be set in production.")
		}

		c.Database.Mode = DatabaseModeInMemory
	}

	switch c.Database.Mode {
	case DatabaseModeInMemory:
		return

	case DatabaseModePostgres:
		setDatabasePostgresDefaultsOrPanic(c)

	default:
		panic(fmt.Errorf("unsupported database mode: %s", c.Database.Mode))
	}
}

func setDatabasePostgresDefaultsOrPanic(c *Config) {
	if c.Database.Postgres.Host == "" {
		if args.IsProduction() {
			panic("Database.Postgres.Host must be set in production.")
		}

		c.Database.Postgres.Host = "localhost"
	}

	if c.Database.Postgres.Port == 0 {
		c.Database.Postgres.Port = 5432
	}

	if c.Database.Postgres.Database == "" {
		c.Database.Postgres.Database = "resumable"
	}

	if c.Database.Postgres.SslMode == "" {
		c.Database.Postgres.SslMode = "disable"
	}
}

func setKvDefaultsOrPanic(c *Config) {
	if c.Kv.Mode == "" {
		if args.IsProduction() {
			panic("Kv.Mode must be set in production.")
		}

		c.Kv.Mode = KvModeInMemory
	}

	switch c.Kv.Mode {
	case KvModeInMemory:
		return

	case KvModeRedis:
		setKvRedisDefaultsOrPanic(c)

	default:
		panic(fmt.Errorf("unsupported kv mode: %s", c.Kv.Mode))
	}
}

func setKvRedisDefaultsOrPanic(c *Config) {
	if c.Kv.Redis.Host == "" {
		if args.IsProduction() {
			panic("Kv.Redis.Host must be set in production.")
		}

		c.Kv.Redis.Host = "localhost"
	}

	if c.Kv.Redis.Port == 0 {
		c.Kv.Redis.Port = 6379
	}
}

func setBlobDefaultsOrPanic(c *Config) {
	if c.Blob.Mode == "" {
		if args.IsProduction() {
			panic("Blob.Mode must be set in production.")
		}

		c.Blob.Mode = BlobStorageModeInMemory
	}

	switch c.Blob.Mode {
	case BlobStorageModeInMemory:
		return

	case BlobStorageModeDirectory:
		if c.Blob.Directory.Path == "" {
			panic("Blob.Directory.Path must be set when using directory mode.")
		}

		if c.Blob.Directory.TempPath == "" {
			c.Blob.Directory.TempPath = filepath.Join(c.Blob.Directory.Path, ".tmp")
		}

	default:
		panic(fmt.Errorf("unsupported blob storage mode: %s", c.Blob.Mode))
	}
}

func setSessionDefaultsOrPanic(c *Config) {
	if c.Session.SigningKey == "" {
		if args.IsProduction() {
			panic("Session.SigningKey must be set in production.")
		}

		c.Session.SigningKey = uuid.NewString()
	}

	if c.Session.Expiration == 0 {
		c.Session.Expiration = 7 * 24 * time.Hour
	}
}
