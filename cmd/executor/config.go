package main

import (
	"flag"
	"log/slog"
	"os"
)

const (
	envCallbackToken = "DOCAI_CALLBACK_TOKEN"
	envPassword      = "DOCAI_EXECUTOR_PASSWORD"
)

type LoggerConfig struct {
	UseDebugLevel    bool
	UseConsoleWriter bool
}

type Config struct {
	Port              int
	Username          string
	Password          string
	CallbackToken     string
	MaxConcurrentRuns int64
	ContinueOnFailure bool
	Logger            LoggerConfig
}

// Parse Config or fail.
func ParseConfig() Config {
	port := flag.Int("port", 8080, "Port of the Airflow compatible trigger endpoint")
	username := flag.String("username", "", "Basic auth username, empty disables auth")
	maxRuns := flag.Int64("maxRuns", 100, "Maximum number of concurrently executed DAG runs")
	continueOnFailure := flag.Bool("continueOnFailure", false,
		"Execute remaining steps after a failed step")
	logDebugLevel := flag.Bool("logDebug", false,
		"Log events on at least debug level. Otherwise info level is assumed.")
	logUseConsoleWriter := flag.Bool("logConsole", true,
		"Use text handler - pretty but not efficient, mostly for development")
	flag.Parse()

	return Config{
		Port:              *port,
		Username:          *username,
		Password:          os.Getenv(envPassword),
		CallbackToken:     os.Getenv(envCallbackToken),
		MaxConcurrentRuns: *maxRuns,
		ContinueOnFailure: *continueOnFailure,
		Logger: LoggerConfig{
			UseDebugLevel:    *logDebugLevel,
			UseConsoleWriter: *logUseConsoleWriter,
		},
	}
}

func (c *Config) setupLogger() *slog.Logger {
	lvl := slog.LevelInfo
	if c.Logger.UseDebugLevel {
		lvl = slog.LevelDebug
	}
	var logger *slog.Logger
	if c.Logger.UseConsoleWriter {
		logger = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}),
		)
	} else {
		logger = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}),
		)
	}
	slog.SetDefault(logger)
	return logger
}
