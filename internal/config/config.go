// Package config loads service settings from MISSIONBOARD_* environment
// variables, after an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const Prefix = "MISSIONBOARD_"

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	DBPath    string `env:"DB_PATH" envDefault:"missionboard.db"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	APIURL               string        `env:"API_URL,required"`
	HTTPTimeout          time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
	ProximityMeters      float64       `env:"PROXIMITY_METERS" envDefault:"200"`
	Timezone             string        `env:"TIMEZONE" envDefault:"Local"`
	ReconcileConcurrency int           `env:"RECONCILE_CONCURRENCY" envDefault:"8"`
	// ReconcileInterval is how often the snapshot is rebuilt from the
	// ledger while signed in. Zero disables the background refresh.
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"5m"`

	// SessionPassphrase encrypts the stored bearer token. Empty keeps the
	// token in memory only.
	SessionPassphrase string `env:"SESSION_PASSPHRASE"`

	S3 S3 `envPrefix:"S3_"`

	location *time.Location
}

type S3 struct {
	Endpoint  string `env:"ENDPOINT"`
	Region    string `env:"REGION" envDefault:"auto"`
	Bucket    string `env:"BUCKET"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	PublicURL string `env:"PUBLIC_URL"`
	MaxBytes  int64  `env:"MAX_BYTES" envDefault:"10485760"`
}

// Load reads envFiles (missing files are ignored) and parses the environment.
// Variables already set take precedence over file values.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: Prefix})
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid %sAPI_URL %q", Prefix, c.APIURL)
	}
	if c.ProximityMeters <= 0 {
		return fmt.Errorf("%sPROXIMITY_METERS must be positive", Prefix)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid %sTIMEZONE: %w", Prefix, err)
	}
	c.location = loc
	return nil
}

// Location is the zone quiet-time windows are evaluated in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}
