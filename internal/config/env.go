package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
	// Origins allowed by CORS; "*" allows any.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".opsdeck/data"`
	// used when Type == "s3"
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"opsdeck/"`
	S3Region string `envconfig:"S3_REGION" default:"us-east-1"`
	// used when Type == "postgres"
	PostgresDSN string `envconfig:"POSTGRES_DSN"`
}

type CatalogEnv struct {
	// Directory holding skills/*.yaml and workflows/*.yaml; empty disables
	// catalog loading.
	Dir   string `envconfig:"CATALOG_DIR" default:""`
	Watch bool   `envconfig:"CATALOG_WATCH" default:"true"`
}

type SchedulerEnv struct {
	PromoteCron    string        `envconfig:"PROMOTE_CRON" default:"5 0 * * *"`
	TimeZone       string        `envconfig:"TIME_ZONE" default:"Local"`
	DefaultAgentID string        `envconfig:"DEFAULT_AGENT_ID" default:"ops-agent"`
	CompanyContext string        `envconfig:"COMPANY_CONTEXT" default:""`
	WorkerTimeout  time.Duration `envconfig:"WORKER_TIMEOUT" default:"2m"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:ops@example.com"`
}

type Env struct {
	BaseEnv
	StorageEnv
	CatalogEnv
	SchedulerEnv
	VAPIDEnv
}

const namespace = "OPSDECK"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Env) validate() error {
	if e.APIKey == "" {
		return fmt.Errorf("OPSDECK_API_KEY must not be empty")
	}
	switch e.StorageEnv.Type {
	case "local":
	case "s3":
		if e.S3Bucket == "" {
			return fmt.Errorf("OPSDECK_S3_BUCKET is required for s3 storage")
		}
	case "postgres":
		if e.PostgresDSN == "" {
			return fmt.Errorf("OPSDECK_POSTGRES_DSN is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage type %q", e.StorageEnv.Type)
	}
	if _, err := e.Location(); err != nil {
		return err
	}
	return nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

// Location is the time zone that decides which calendar day it is.
func (e *SchedulerEnv) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(e.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid OPSDECK_TIME_ZONE %q: %w", e.TimeZone, err)
	}
	return loc, nil
}
