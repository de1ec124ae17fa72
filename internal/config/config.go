package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config centralizes runtime settings for the API and the result worker.
// Values load from environment variables; .env files fill the gaps without
// overriding the process environment.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	AppBaseURL  string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	Redis RedisConfig `envPrefix:"REDIS_"`
	Kafka KafkaConfig `envPrefix:"KAFKA_"`

	// QueueDriver selects the message transport: redis, kafka or local.
	QueueDriver string `env:"QUEUE_DRIVER" envDefault:"redis"`

	Media MediaConfig `envPrefix:"MEDIA_"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	RateLimitRPS       float64  `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst     int      `env:"RATE_LIMIT_BURST" envDefault:"40"`

	DuplicateWindow time.Duration `env:"DUPLICATE_WINDOW" envDefault:"5m"`

	WorkerEnabled  bool          `env:"WORKER_ENABLED" envDefault:"true"`
	MessageTimeout time.Duration `env:"WORKER_MESSAGE_TIMEOUT" envDefault:"30s"`

	ReconcilerEnabled   bool          `env:"RECONCILER_ENABLED" envDefault:"true"`
	ReconcilerInterval  time.Duration `env:"RECONCILER_INTERVAL" envDefault:"5m"`
	ReconcilerThreshold time.Duration `env:"RECONCILER_THRESHOLD" envDefault:"10m"`
	ReconcilerBatch     int           `env:"RECONCILER_BATCH" envDefault:"50"`

	// Dev seed user for the in-memory fallback repositories.
	SeedUserEmail    string `env:"SEED_USER_EMAIL" envDefault:"dev@geopix.local"`
	SeedUserPassword string `env:"SEED_USER_PASSWORD" envDefault:"devpassword"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`

	TaskStream   string `env:"TASK_STREAM" envDefault:"images.tasks"`
	ResultStream string `env:"RESULT_STREAM" envDefault:"images.results"`
	Group        string `env:"GROUP" envDefault:"geopix_backend"`
	Consumer     string `env:"CONSUMER" envDefault:"api-1"`
}

type KafkaConfig struct {
	Brokers     []string `env:"BROKERS" envSeparator:","`
	TaskTopic   string   `env:"TASK_TOPIC" envDefault:"images.tasks"`
	ResultTopic string   `env:"RESULT_TOPIC" envDefault:"images.results"`
	Group       string   `env:"CONSUMER_GROUP" envDefault:"geopix-backend"`
	ClientID    string   `env:"CLIENT_ID" envDefault:"geopix-back"`
}

type MediaConfig struct {
	// Driver selects the blob store: fs or s3.
	Driver  string `env:"DRIVER" envDefault:"fs"`
	Dir     string `env:"DIR" envDefault:"storage/images"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080/storage/images"`

	S3Bucket    string `env:"S3_BUCKET"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3Prefix    string `env:"S3_PREFIX" envDefault:"images"`
}

// Load reads .env files (existing environment keeps precedence) and parses
// the environment into a Config.
func Load(dotenvPaths ...string) (Config, error) {
	for _, path := range dotenvPaths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.sanitize()
	return cfg, nil
}

func (c *Config) sanitize() {
	if c.DuplicateWindow <= 0 {
		c.DuplicateWindow = 5 * time.Minute
	}
	if c.MessageTimeout <= 0 {
		c.MessageTimeout = 30 * time.Second
	}
	if c.ReconcilerInterval <= 0 {
		c.ReconcilerInterval = 5 * time.Minute
	}
	if c.ReconcilerThreshold <= 0 {
		c.ReconcilerThreshold = 10 * time.Minute
	}
	if c.ReconcilerBatch <= 0 {
		c.ReconcilerBatch = 50
	}
	switch c.QueueDriver {
	case "redis", "kafka", "local":
	default:
		c.QueueDriver = "local"
	}
	switch c.Media.Driver {
	case "fs", "s3":
	default:
		c.Media.Driver = "fs"
	}
}
