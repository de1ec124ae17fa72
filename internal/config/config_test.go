package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("unexpected default port: %s", cfg.Port)
	}
	if cfg.DuplicateWindow != 5*time.Minute {
		t.Fatalf("unexpected duplicate window: %s", cfg.DuplicateWindow)
	}
	if cfg.Redis.TaskStream != "images.tasks" || cfg.Redis.ResultStream != "images.results" {
		t.Fatalf("unexpected stream defaults: %+v", cfg.Redis)
	}
	if !cfg.WorkerEnabled {
		t.Fatalf("worker should default to enabled")
	}
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	t.Setenv("QUEUE_DRIVER", "kafka")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")
	t.Setenv("DUPLICATE_WINDOW", "2m")
	t.Setenv("MEDIA_DRIVER", "s3")
	t.Setenv("MEDIA_S3_BUCKET", "uploads")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.QueueDriver != "kafka" {
		t.Fatalf("unexpected queue driver: %s", cfg.QueueDriver)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.Kafka.Brokers)
	}
	if cfg.DuplicateWindow != 2*time.Minute {
		t.Fatalf("unexpected duplicate window: %s", cfg.DuplicateWindow)
	}
	if cfg.Media.Driver != "s3" || cfg.Media.S3Bucket != "uploads" {
		t.Fatalf("unexpected media config: %+v", cfg.Media)
	}
}

func TestSanitizeRejectsUnknownDrivers(t *testing.T) {
	t.Setenv("QUEUE_DRIVER", "rabbitmq")
	t.Setenv("MEDIA_DRIVER", "ftp")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.QueueDriver != "local" {
		t.Fatalf("unknown queue driver should fall back to local, got %s", cfg.QueueDriver)
	}
	if cfg.Media.Driver != "fs" {
		t.Fatalf("unknown media driver should fall back to fs, got %s", cfg.Media.Driver)
	}
}
