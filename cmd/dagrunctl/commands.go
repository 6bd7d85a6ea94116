package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/docai/core/api"
	"github.com/docai/core/auth"
	"github.com/docai/core/payload"
)

func newCreateCmd(opts *globalOptions) *cobra.Command {
	var params, chatbotId string
	var skipStart bool
	cmd := &cobra.Command{
		Use:   "create DAG_NAME",
		Short: "Create new DAG run and start it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			in := api.DagRunCreateInput{DagName: args[0], SkipStart: skipStart}
			if params != "" {
				p, err := payload.ParseString(params)
				if err != nil {
					return fmt.Errorf("invalid --params: %w", err)
				}
				in.Params = p
			}
			if chatbotId != "" {
				in.ChatbotId = &chatbotId
			}
			ctx, cancel := opts.context()
			defer cancel()
			start := time.Now()
			out, err := opts.client().CreateDagRun(ctx, in)
			if err != nil {
				return err
			}
			log.Debug().Str("runId", out.RunId).Dur("duration", time.Since(start)).
				Msg("DAG run created")
			return opts.print(out)
		},
	}
	cmd.Flags().StringVar(&params, "params", "", "DAG run params as JSON object")
	cmd.Flags().StringVar(&chatbotId, "chatbot", "", "Chatbot id")
	cmd.Flags().BoolVar(&skipStart, "skip-start", false,
		"Only create DAG run, don't signal the executor")
	return cmd
}

func newGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get RUN_ID",
		Short: "Show DAG run with its status stack",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := opts.context()
			defer cancel()
			out, err := opts.client().GetDagRun(ctx, args[0])
			if err != nil {
				return err
			}
			return opts.print(out)
		},
	}
}

func newListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List DAG runs of the caller",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ctx, cancel := opts.context()
			defer cancel()
			out, err := opts.client().ListDagRuns(ctx)
			if err != nil {
				return err
			}
			return opts.print(out)
		},
	}
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count DAG runs of the tenant by status",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ctx, cancel := opts.context()
			defer cancel()
			out, err := opts.client().DagRunStats(ctx)
			if err != nil {
				return err
			}
			return opts.print(out)
		},
	}
}

func newFinishedCmd(opts *globalOptions) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "finished RUN_ID",
		Short: "Check if DAG run is finished, optionally waiting for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			deadline := time.Now().Add(wait)
			for {
				ctx, cancel := opts.context()
				out, err := opts.client().CheckStatusFinish(ctx, args[0])
				cancel()
				if err != nil {
					return err
				}
				if out.Finished || time.Now().After(deadline) {
					return opts.print(out)
				}
				log.Debug().Str("runId", args[0]).Str("status", out.Status).
					Msg("DAG run not finished yet")
				time.Sleep(time.Second)
			}
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0,
		"Poll until DAG run is finished or wait duration passes")
	return cmd
}

func newStartCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start RUN_ID",
		Short: "Signal the executor to start DAG run",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := opts.context()
			defer cancel()
			out, err := opts.client().StartDagRun(ctx, args[0])
			if err != nil {
				return err
			}
			return opts.print(out)
		},
	}
}

func newResetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset RUN_ID",
		Short: "Reset DAG run back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := opts.context()
			defer cancel()
			out, err := opts.client().ResetDagRun(ctx, args[0])
			if err != nil {
				return err
			}
			return opts.print(out)
		},
	}
}

func newUpdateCmd(opts *globalOptions) *cobra.Command {
	var tenant, content, function string
	cmd := &cobra.Command{
		Use:   "update RUN_ID TASK_NAME",
		Short: "Post task status callback, as the executor does",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			if tenant == "" {
				return errors.New("--tenant is required")
			}
			in := api.TaskStatusUpdateInput{TaskName: args[1]}
			c, err := payload.ParseString(content)
			if err != nil {
				return fmt.Errorf("invalid --content: %w", err)
			}
			in.Content = c
			if function != "" {
				in.Function = &function
			}
			ctx, cancel := opts.context()
			defer cancel()
			out, uErr := opts.client().UpdateTaskStatus(ctx, tenant, args[0], in)
			if uErr != nil {
				return uErr
			}
			return opts.print(out)
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant of DAG run")
	cmd.Flags().StringVar(&content, "content", `{"ok": true}`,
		"Task status content as JSON")
	cmd.Flags().StringVar(&function, "function", "", "Function name")
	return cmd
}

func newTokenCmd(opts *globalOptions) *cobra.Command {
	var tenant, owner, ownerType, issuer string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue caller token signed with " + envJwtSecret,
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			secret := os.Getenv(envJwtSecret)
			if secret == "" {
				return fmt.Errorf("%s is not set", envJwtSecret)
			}
			authn := auth.NewAuthenticator([]byte(secret), issuer, ttl)
			token, err := authn.Issue(auth.Identity{
				Tenant: tenant, OwnerId: owner, OwnerType: ownerType,
			})
			if err != nil {
				return err
			}
			_, wErr := fmt.Fprintln(opts.out, token)
			return wErr
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner id")
	cmd.Flags().StringVar(&ownerType, "owner-type", "user", "Owner type")
	cmd.Flags().StringVar(&issuer, "issuer", "docai", "Token issuer")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token validity")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("owner")
	return cmd
}
