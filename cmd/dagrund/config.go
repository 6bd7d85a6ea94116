package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docai/core/tracker"
)

// Environment variables with secrets. Secrets are never read from the
// config file.
const (
	envJwtSecret       = "DOCAI_JWT_SECRET"
	envCallbackToken   = "DOCAI_CALLBACK_TOKEN"
	envAirflowPassword = "DOCAI_AIRFLOW_PASSWORD"
	envPostgresDsn     = "DOCAI_POSTGRES_DSN"
)

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DatabaseConfig struct {
	// Either sqlite or postgres.
	Driver     string        `yaml:"driver"`
	SqlitePath string        `yaml:"sqlitePath"`
	PgName     string        `yaml:"postgresDbName"`
	PgDsn      string        `yaml:"-"`
	ConnectFor time.Duration `yaml:"connectTimeout"`
}

type AirflowConfig struct {
	BaseUrl     string        `yaml:"baseUrl"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"-"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"maxAttempts"`
}

type TrackerConfig struct {
	FinishedCacheLen int           `yaml:"finishedCacheLen"`
	RequireKnownDag  bool          `yaml:"requireKnownDag"`
	ListLimit        int           `yaml:"listLimit"`
	CallbackBaseUrl  string        `yaml:"callbackBaseUrl"`
	RequestTimeout   time.Duration `yaml:"requestTimeout"`
}

type Config struct {
	Port            int            `yaml:"port"`
	CatalogPath     string         `yaml:"catalogPath"`
	JwtIssuer       string         `yaml:"jwtIssuer"`
	JwtSecret       string         `yaml:"-"`
	CallbackToken   string         `yaml:"-"`
	NotifyWebhook   string         `yaml:"notifyWebhookUrl"`
	ShutdownTimeout time.Duration  `yaml:"shutdownTimeout"`
	Logger          LoggerConfig   `yaml:"logger"`
	Database        DatabaseConfig `yaml:"database"`
	Airflow         AirflowConfig  `yaml:"airflow"`
	Tracker         TrackerConfig  `yaml:"tracker"`
}

func defaultConfig() Config {
	return Config{
		Port:            9321,
		JwtIssuer:       "docai",
		ShutdownTimeout: 15 * time.Second,
		Logger:          LoggerConfig{Level: "INFO", Format: "text"},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SqlitePath: "dagruns.db",
			ConnectFor: 30 * time.Second,
		},
		Airflow: AirflowConfig{
			BaseUrl:     "http://localhost:8080",
			Timeout:     10 * time.Second,
			MaxAttempts: 3,
		},
		Tracker: TrackerConfig{
			FinishedCacheLen: tracker.DefaultConfig.FinishedCacheLen,
			ListLimit:        tracker.DefaultConfig.ListLimit,
			RequestTimeout:   tracker.DefaultConfig.RequestTimeout,
		},
	}
}

// ParseConfig reads config file given by -config flag, applies flag
// overrides and secrets from environment variables.
func ParseConfig(args []string) (Config, error) {
	fs := flag.NewFlagSet("dagrund", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	port := fs.Int("port", 0, "Port on which the tracker is exposed")
	dbDriver := fs.String("db", "", "Database driver: sqlite or postgres")
	sqlitePath := fs.String("sqlite", "", "Path to SQLite database file")
	catalogPath := fs.String("catalog", "", "Path to YAML DAG catalog")
	airflowUrl := fs.String("airflow", "", "Base URL of Airflow webserver")
	logLevel := fs.String("logLevel", "", "Log level: DEBUG, INFO, WARN or ERROR")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return Config{}, fmt.Errorf("cannot read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("cannot parse config file %s: %w",
				*configPath, err)
		}
	}

	setIfNotEmpty(&cfg.Database.Driver, *dbDriver)
	setIfNotEmpty(&cfg.Database.SqlitePath, *sqlitePath)
	setIfNotEmpty(&cfg.CatalogPath, *catalogPath)
	setIfNotEmpty(&cfg.Airflow.BaseUrl, *airflowUrl)
	setIfNotEmpty(&cfg.Logger.Level, *logLevel)
	if *port > 0 {
		cfg.Port = *port
	}

	cfg.JwtSecret = os.Getenv(envJwtSecret)
	cfg.CallbackToken = os.Getenv(envCallbackToken)
	cfg.Airflow.Password = os.Getenv(envAirflowPassword)
	cfg.Database.PgDsn = os.Getenv(envPostgresDsn)
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	if c.JwtSecret == "" {
		errs = append(errs, fmt.Errorf("%s is not set", envJwtSecret))
	}
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.PgDsn == "" {
			errs = append(errs, fmt.Errorf("%s is not set", envPostgresDsn))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q",
			c.Database.Driver))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	return errors.Join(errs...)
}

func (c Config) trackerConfig() tracker.Config {
	cfg := tracker.DefaultConfig
	cfg.FinishedCacheLen = c.Tracker.FinishedCacheLen
	cfg.RequireKnownDag = c.Tracker.RequireKnownDag
	cfg.ListLimit = c.Tracker.ListLimit
	cfg.CallbackBaseUrl = c.Tracker.CallbackBaseUrl
	cfg.CallbackToken = c.CallbackToken
	cfg.RequestTimeout = c.Tracker.RequestTimeout
	if cfg.CallbackBaseUrl == "" {
		cfg.CallbackBaseUrl = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	return cfg
}

func (c Config) newLogger() *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.Logger.Level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := slog.HandlerOptions{Level: lvl}
	if c.Logger.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &opts))
}

func setIfNotEmpty(target *string, value string) {
	if value != "" {
		*target = value
	}
}
