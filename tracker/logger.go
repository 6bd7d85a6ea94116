package tracker

import (
	"log/slog"
	"os"
	"strings"
)

// Environment variables of the default tracker logger.
const (
	DOCAI_ENV_LOG_LEVEL  = "DOCAI_LOG_LEVEL"
	DOCAI_ENV_LOG_FORMAT = "DOCAI_LOG_FORMAT"
)

// defaultLogger writes to stdout on level given by DOCAI_LOG_LEVEL (INFO
// when unset or invalid). Setting DOCAI_LOG_FORMAT=json switches to JSON
// handler.
func defaultLogger() *slog.Logger {
	opts := slog.HandlerOptions{Level: logLevelFromEnv()}
	if strings.EqualFold(os.Getenv(DOCAI_ENV_LOG_FORMAT), "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, &opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &opts))
}

func logLevelFromEnv() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv(DOCAI_ENV_LOG_LEVEL))); err != nil {
		return slog.LevelInfo
	}
	return level
}
