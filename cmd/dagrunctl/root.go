package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/docai/core/tracker"
)

const (
	envTrackerUrl    = "DOCAI_TRACKER_URL"
	envToken         = "DOCAI_TOKEN"
	envCallbackToken = "DOCAI_CALLBACK_TOKEN"
	envJwtSecret     = "DOCAI_JWT_SECRET"
)

type globalOptions struct {
	trackerUrl string
	token      string
	timeout    time.Duration
	debug      bool
	out        io.Writer
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{out: os.Stdout}
	root := &cobra.Command{
		Use:           "dagrunctl",
		Short:         "Command line client of the DAG run tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupZerolog(opts.debug)
			opts.out = cmd.OutOrStdout()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.trackerUrl, "url", envOrDefault(envTrackerUrl, "http://localhost:9321"),
		"Tracker base URL")
	flags.StringVar(&opts.token, "token", os.Getenv(envToken),
		"Bearer token (JWT) of the caller")
	flags.DurationVar(&opts.timeout, "timeout", 15*time.Second,
		"Request timeout")
	flags.BoolVar(&opts.debug, "debug", false, "Log on debug level")

	root.AddCommand(
		newCreateCmd(opts),
		newGetCmd(opts),
		newListCmd(opts),
		newStatsCmd(opts),
		newFinishedCmd(opts),
		newStartCmd(opts),
		newResetCmd(opts),
		newUpdateCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

func (o *globalOptions) client() *tracker.Client {
	cfg := tracker.DefaultClientConfig
	cfg.HttpClientTimeout = o.timeout
	cfg.Token = o.token
	cfg.CallbackToken = os.Getenv(envCallbackToken)
	level := slog.LevelWarn
	if o.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: level}))
	return tracker.NewClient(o.trackerUrl, nil, logger, cfg)
}

func (o *globalOptions) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.timeout)
}

func (o *globalOptions) print(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot serialize output: %w", err)
	}
	_, wErr := fmt.Fprintln(o.out, string(data))
	return wErr
}

func setupZerolog(debug bool) {
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out: os.Stderr, TimeFormat: time.RFC3339,
	})
}

func envOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
