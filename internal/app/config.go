package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/bookimport/internal/platform/envutil"
	"github.com/yungbote/bookimport/internal/platform/logger"
)

const (
	DocStoreFirestore = "firestore"
	DocStorePostgres  = "postgres"
	DocStoreSQLite    = "sqlite"
	DocStoreMongo     = "mongo"
	DocStoreMemory    = "memory"

	DefaultInputPath = "./db_sample.json"
)

// Config is resolved in layers: defaults, the YAML file, the environment, then CLI flags
// (applied by the caller).
type Config struct {
	LogMode string `yaml:"log_mode"`
	Input   string `yaml:"input"`

	DocStoreMode       string `yaml:"docstore_mode"`
	FirestoreProjectID string `yaml:"firestore_project_id"`
	PostgresDSN        string `yaml:"postgres_dsn"`
	SQLitePath         string `yaml:"sqlite_path"`
	MongoURI           string `yaml:"mongo_uri"`
	MongoDatabase      string `yaml:"mongo_database"`

	Bucket                    string `yaml:"gcs_bucket"`
	CDNDomain                 string `yaml:"cdn_domain"`
	ObjectStorageMode         string `yaml:"object_storage_mode"`
	StorageEmulatorHost       string `yaml:"storage_emulator_host"`
	ObjectStoragePublicURL    string `yaml:"object_storage_public_base_url"`
	StorageModeCompatFallback bool   `yaml:"-"`

	Concurrency       int           `yaml:"concurrency"`
	UploadConcurrency int           `yaml:"upload_concurrency"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	UploadTimeout     time.Duration `yaml:"upload_timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
	MediaRoot         string        `yaml:"media_root"`
	StagingDir        string        `yaml:"staging_dir"`
	UploadContentJSON bool          `yaml:"upload_content_json"`
	FailFast          bool          `yaml:"fail_fast"`
	DryRun            bool          `yaml:"dry_run"`
	FailuresOut       string        `yaml:"failures_out"`

	RedisAddr            string        `yaml:"redis_addr"`
	RedisProgressChannel string        `yaml:"redis_progress_channel"`
	ProgressInterval     time.Duration `yaml:"progress_interval"`

	OtelEnabled     bool    `yaml:"otel_enabled"`
	OtelExporter    string  `yaml:"otel_exporter"`
	OtelEndpoint    string  `yaml:"otel_endpoint"`
	OtelHeaders     string  `yaml:"otel_headers"`
	OtelInsecure    bool    `yaml:"otel_insecure"`
	OtelSampleRatio float64 `yaml:"otel_sample_ratio"`
	Environment     string  `yaml:"environment"`
}

func DefaultConfig() Config {
	return Config{
		LogMode:           "development",
		Input:             DefaultInputPath,
		DocStoreMode:      DocStoreFirestore,
		SQLitePath:        "bookimport.db",
		MongoDatabase:     "bookimport",
		ObjectStorageMode: "gcs",
		Concurrency:       8,
		UploadConcurrency: 16,
		WriteTimeout:      30 * time.Second,
		UploadTimeout:     2 * time.Minute,
		MaxAttempts:       4,
		UploadContentJSON: true,
		ProgressInterval:  2 * time.Second,
		OtelSampleRatio:   1,
		Environment:       "local",
	}
}

// LoadConfig resolves defaults, then configPath (or IMPORT_CONFIG_FILE), then the
// environment. A .env file in the working directory is loaded first and never overrides
// variables that are already set.
func LoadConfig(log *logger.Logger, configPath string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Failed to load .env file", "error", err)
	}

	cfg := DefaultConfig()
	if strings.TrimSpace(configPath) == "" {
		configPath = envutil.String("IMPORT_CONFIG_FILE", "", log)
	}
	if configPath != "" {
		if err := cfg.mergeFile(configPath); err != nil {
			return cfg, err
		}
		log.Info("Loaded config file", "path", configPath)
	}
	cfg.applyEnv(log)
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(log *logger.Logger) {
	c.LogMode = envutil.String("LOG_MODE", c.LogMode, log)
	c.Input = envutil.String("IMPORT_INPUT", c.Input, log)

	c.DocStoreMode = strings.ToLower(envutil.String("DOCSTORE_MODE", c.DocStoreMode, log))
	c.FirestoreProjectID = envutil.String("FIRESTORE_PROJECT_ID", c.FirestoreProjectID, log)
	c.PostgresDSN = envutil.String("POSTGRES_DSN", c.PostgresDSN, log)
	c.SQLitePath = envutil.String("SQLITE_PATH", c.SQLitePath, log)
	c.MongoURI = envutil.String("MONGO_URI", c.MongoURI, log)
	c.MongoDatabase = envutil.String("MONGO_DATABASE", c.MongoDatabase, log)

	c.Bucket = envutil.String("IMPORT_GCS_BUCKET", c.Bucket, log)
	c.CDNDomain = envutil.String("IMPORT_CDN_DOMAIN", c.CDNDomain, log)
	c.StorageEmulatorHost = strings.TrimRight(envutil.String("STORAGE_EMULATOR_HOST", c.StorageEmulatorHost, log), "/")
	c.ObjectStoragePublicURL = strings.TrimRight(envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", c.ObjectStoragePublicURL, log), "/")
	if mode, ok := os.LookupEnv("OBJECT_STORAGE_MODE"); ok && strings.TrimSpace(mode) != "" {
		c.ObjectStorageMode = strings.ToLower(strings.TrimSpace(mode))
	} else if c.StorageEmulatorHost != "" && c.ObjectStorageMode == DefaultConfig().ObjectStorageMode {
		c.ObjectStorageMode = "gcs_emulator"
		c.StorageModeCompatFallback = true
	}

	c.Concurrency = envutil.Int("IMPORT_CONCURRENCY", c.Concurrency, log)
	c.UploadConcurrency = envutil.Int("IMPORT_UPLOAD_CONCURRENCY", c.UploadConcurrency, log)
	c.WriteTimeout = envutil.Duration("IMPORT_WRITE_TIMEOUT", c.WriteTimeout, log)
	c.UploadTimeout = envutil.Duration("IMPORT_UPLOAD_TIMEOUT", c.UploadTimeout, log)
	c.MaxAttempts = envutil.Int("IMPORT_MAX_ATTEMPTS", c.MaxAttempts, log)
	c.MediaRoot = envutil.String("IMPORT_MEDIA_ROOT", c.MediaRoot, log)
	c.StagingDir = envutil.String("IMPORT_STAGING_DIR", c.StagingDir, log)
	c.UploadContentJSON = envutil.Bool("IMPORT_UPLOAD_CONTENT_JSON", c.UploadContentJSON, log)
	c.FailFast = envutil.Bool("IMPORT_FAIL_FAST", c.FailFast, log)

	c.RedisAddr = envutil.String("REDIS_ADDR", c.RedisAddr, log)
	c.RedisProgressChannel = envutil.String("REDIS_PROGRESS_CHANNEL", c.RedisProgressChannel, log)
	c.ProgressInterval = envutil.Duration("IMPORT_PROGRESS_INTERVAL", c.ProgressInterval, log)

	c.OtelEnabled = envutil.Bool("OTEL_ENABLED", c.OtelEnabled, log)
	c.OtelExporter = envutil.String("OTEL_EXPORTER", c.OtelExporter, log)
	c.OtelEndpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", c.OtelEndpoint, log)
	c.OtelHeaders = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", c.OtelHeaders, log)
	c.OtelInsecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", c.OtelInsecure, log)
	c.Environment = envutil.String("APP_ENV", c.Environment, log)
}

// Validate checks the settings every run needs. Backend credentials are checked when the
// backend is opened.
func (c Config) Validate() error {
	var errs []error
	switch c.DocStoreMode {
	case DocStoreFirestore, DocStorePostgres, DocStoreSQLite, DocStoreMongo, DocStoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported DOCSTORE_MODE %q", c.DocStoreMode))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency))
	}
	if c.UploadConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("upload concurrency must be positive, got %d", c.UploadConcurrency))
	}
	if c.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts))
	}
	if c.WriteTimeout <= 0 || c.UploadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("timeouts must be positive"))
	}
	return errors.Join(errs...)
}
