package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/dunamismax/variantflow/internal/logging"
	"github.com/dunamismax/variantflow/internal/pipeline"
	"github.com/dunamismax/variantflow/internal/storage"
	"github.com/hibiken/asynq"
	"github.com/spf13/viper"
)

type Config struct {
	Log      logging.Config `mapstructure:"log"`
	API      APIConfig      `mapstructure:"api"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Storage  storage.Config `mapstructure:"storage"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Database DatabaseConfig `mapstructure:"database"`
	Dedupe   DedupeConfig   `mapstructure:"dedupe"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Report   ReportConfig   `mapstructure:"report"`
}

type APIConfig struct {
	Addr string `mapstructure:"addr"`
	// AuthToken is the bearer token bucket notifications must carry. MinIO
	// sends it when the webhook target has auth_token set.
	AuthToken string `mapstructure:"auth_token"`
}

type QueueConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Name          string        `mapstructure:"name"`
	MaxRetry      int           `mapstructure:"max_retry"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency   int    `mapstructure:"concurrency"`
	MaxActiveJobs int    `mapstructure:"max_active_jobs"`
	MetricsAddr   string `mapstructure:"metrics_addr"`
}

type PipelineConfig struct {
	UploadMarker      string               `mapstructure:"upload_marker"`
	OutputPrefix      string               `mapstructure:"output_prefix"`
	DestinationBucket string               `mapstructure:"destination_bucket"`
	JPEGQuality       int                  `mapstructure:"jpeg_quality"`
	Classifications   []domain.VariantSpec `mapstructure:"classifications"`
}

// VariantTable builds the lookup table from the configured classifications,
// falling back to the built-in table when none are configured.
func (p PipelineConfig) VariantTable() (domain.VariantTable, error) {
	if len(p.Classifications) == 0 {
		return domain.DefaultVariantTable(), nil
	}
	return domain.NewVariantTable(p.Classifications...)
}

func (p PipelineConfig) KeyLayout() pipeline.KeyLayout {
	return pipeline.KeyLayout{
		UploadMarker:      p.UploadMarker,
		OutputPrefix:      p.OutputPrefix,
		DestinationBucket: p.DestinationBucket,
	}
}

type KafkaConfig struct {
	Brokers          string   `mapstructure:"brokers"`
	ConsumerTopic    string   `mapstructure:"consumer_topic"`
	ConsumerGroupID  string   `mapstructure:"consumer_group_id"`
	ProducerTopic    string   `mapstructure:"producer_topic"`
	EventNameFilters []string `mapstructure:"event_name_filters"`
}

type WebhookConfig struct {
	URL            string        `mapstructure:"url"`
	SigningSecret  string        `mapstructure:"signing_secret"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type DedupeConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

type ReportConfig struct {
	SinkTimeout time.Duration `mapstructure:"sink_timeout"`
}

type TracingConfig struct {
	Exporter     string `mapstructure:"exporter"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

// Load reads ./config/config.yaml (or ./config.yaml) when present and lets
// environment variables override every key.
func Load() (Config, error) {
	return load("./config", ".")
}

// LoadFrom is Load restricted to a single config directory.
func LoadFrom(dir string) (Config, error) {
	return load(dir)
}

func load(paths ...string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.Pipeline.KeyLayout().Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if c.Pipeline.JPEGQuality < 1 || c.Pipeline.JPEGQuality > 100 {
		return fmt.Errorf("pipeline.jpeg_quality must be within 1..100, got %d", c.Pipeline.JPEGQuality)
	}
	if _, err := c.Pipeline.VariantTable(); err != nil {
		return fmt.Errorf("pipeline.classifications: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	defaultWorkerSlots := max(1, runtime.NumCPU()/2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "variantflow")

	v.SetDefault("api.addr", ":8080")
	v.SetDefault("api.auth_token", "")

	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.name", "default")
	v.SetDefault("queue.max_retry", 5)
	v.SetDefault("queue.timeout", 3*time.Minute)

	v.SetDefault("worker.concurrency", max(2, runtime.NumCPU()))
	v.SetDefault("worker.max_active_jobs", defaultWorkerSlots)
	v.SetDefault("worker.metrics_addr", ":9090")

	v.SetDefault("storage.type", storage.TypeS3)
	v.SetDefault("storage.public_read", true)
	v.SetDefault("storage.minio.endpoint", "localhost:9000")
	v.SetDefault("storage.minio.access_key", "minioadmin")
	v.SetDefault("storage.minio.secret_key", "minioadmin")
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.use_path_style", false)

	v.SetDefault("pipeline.upload_marker", "uploaded")
	v.SetDefault("pipeline.output_prefix", "generated")
	v.SetDefault("pipeline.destination_bucket", "")
	v.SetDefault("pipeline.jpeg_quality", 85)

	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.consumer_topic", "minio-events")
	v.SetDefault("kafka.consumer_group_id", "variantflow")
	v.SetDefault("kafka.producer_topic", "")
	v.SetDefault("kafka.event_name_filters", []string{"s3:ObjectCreated:Put", "s3:ObjectCreated:CompleteMultipartUpload"})

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.signing_secret", "")
	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.max_attempts", 3)
	v.SetDefault("webhook.initial_backoff", time.Second)
	v.SetDefault("webhook.max_backoff", 10*time.Second)

	v.SetDefault("database.dsn", "")

	v.SetDefault("dedupe.ttl", 10*time.Minute)
	v.SetDefault("dedupe.key_prefix", "variantflow:seen")

	v.SetDefault("report.sink_timeout", 30*time.Second)

	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.otlp_insecure", false)
}

// bindEnv keeps the short variable names used by existing deployments.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("api.addr", "VARIANTFLOW_API_ADDR")
	_ = v.BindEnv("api.auth_token", "VARIANTFLOW_API_TOKEN")
	_ = v.BindEnv("queue.redis_addr", "REDIS_ADDR")
	_ = v.BindEnv("queue.redis_password", "REDIS_PASSWORD")
	_ = v.BindEnv("queue.redis_db", "REDIS_DB")
	_ = v.BindEnv("queue.name", "ASYNC_QUEUE")
	_ = v.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = v.BindEnv("worker.max_active_jobs", "WORKER_MAX_ACTIVE_JOBS")
	_ = v.BindEnv("storage.type", "STORAGE_TYPE")
	_ = v.BindEnv("storage.minio.endpoint", "MINIO_ENDPOINT")
	_ = v.BindEnv("storage.minio.access_key", "MINIO_ACCESS_KEY")
	_ = v.BindEnv("storage.minio.secret_key", "MINIO_SECRET_KEY")
	_ = v.BindEnv("storage.minio.use_ssl", "MINIO_USE_SSL")
	_ = v.BindEnv("storage.s3.endpoint", "S3_ENDPOINT")
	_ = v.BindEnv("storage.s3.region", "S3_REGION", "AWS_REGION")
	_ = v.BindEnv("pipeline.destination_bucket", "DESTINATION_BUCKET")
	_ = v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	_ = v.BindEnv("webhook.url", "WEBHOOK_URL")
	_ = v.BindEnv("webhook.signing_secret", "WEBHOOK_SIGNING_SECRET")
	_ = v.BindEnv("database.dsn", "POSTGRES_DSN")
	_ = v.BindEnv("tracing.exporter", "TRACING_EXPORTER")
	_ = v.BindEnv("tracing.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}
