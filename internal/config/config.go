package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config carries all environment-driven settings for the service and jobs.
//
// MaxHistoryDays stays a raw string on purpose: an invalid value must degrade
// to unlimited history at use time with a logged warning, never fail startup.
// The token signing secret (CLINIC_AUTH_SECRET) is read and cached by the
// auth package directly and is not duplicated here.
type Config struct {
	HTTPAddr       string `env:"CLINIC_HTTP_ADDR" env-default:":8080"`
	PGDSN          string `env:"CLINIC_PG_DSN"`
	MaxHistoryDays string `env:"CLINIC_SYNC_MAX_HISTORY_DAYS"`

	RateBurst  int `env:"CLINIC_RATE_BURST" env-default:"50"`
	RatePerSec int `env:"CLINIC_RATE_PER_SEC" env-default:"25"`

	S3Region    string `env:"CLINIC_S3_REGION" env-default:"us-east-1"`
	S3Endpoint  string `env:"CLINIC_S3_ENDPOINT"`
	S3Bucket    string `env:"CLINIC_S3_BUCKET"`
	S3AccessKey string `env:"CLINIC_S3_ACCESS_KEY"`
	S3SecretKey string `env:"CLINIC_S3_SECRET_KEY"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}
