// Package contentgraph builds the contentgraph command line: the server
// plus the operator commands that run against the same stores.
package contentgraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"

	entrypoint "github.com/louisbranch/contentgraph/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/contentgraph/internal/platform/grpc"
	"github.com/louisbranch/contentgraph/internal/platform/timeouts"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/app"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
)

// replayAll selects every projection for replay.
const replayAll = "all"

// operatorUser is recorded as initiator of commands issued from the CLI.
const operatorUser ids.UserID = "operator"

// NewRootCommand builds the command tree. Output goes to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "contentgraph",
		Short:         "Event-sourced content repository",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.AddCommand(
		newServeCommand(),
		newReplayCommand(),
		newStatusCommand(),
		newVerifyCommand(),
		newRebaseCommand(),
		newWorkspacesCommand(),
		newHealthCommand(),
	)
	return root
}

// Execute runs the command line with args.
func Execute(ctx context.Context, args []string, out io.Writer) error {
	root := NewRootCommand(out)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health and metrics and keep projections caught up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			return entrypoint.RunWithTelemetry(cmd.Context(), entrypoint.ServiceContentGraph, func(ctx context.Context) error {
				return app.Run(ctx, cfg)
			})
		},
	}
}

func newReplayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <projection|all>",
		Short: "Truncate projections and rebuild them from the event store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd.Context(), func(ctx context.Context, repo *app.Repository) error {
				names := []string{strings.TrimSpace(args[0])}
				if names[0] == replayAll {
					names = repo.Projections().Names()
				}
				for _, name := range names {
					result, err := repo.Projections().Rebuild(ctx, name)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: replayed %d events through seq %d\n", name, result.Applied, result.LastSeq)
				}
				return nil
			})
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show projection checkpoints against the event store head",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepository(cmd.Context(), func(ctx context.Context, repo *app.Repository) error {
				statuses, err := repo.Projections().Status(ctx)
				if err != nil {
					return err
				}
				for _, status := range statuses {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tcheckpoint=%d\thead=%d\tlag=%d\n",
						status.Projection, status.Checkpoint, status.Head, status.Lag())
				}
				return nil
			})
		},
	}
}

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Recompute event hash chains and signatures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepository(cmd.Context(), func(ctx context.Context, repo *app.Repository) error {
				report, err := repo.Events().VerifyIntegrity(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "verified %d streams, %d events\n", report.Streams, report.Events)
				return nil
			})
		},
	}
}

func newRebaseCommand() *cobra.Command {
	var newStream string
	cmd := &cobra.Command{
		Use:   "rebase <workspace>",
		Short: "Rebase a workspace onto the current state of its base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ids.WorkspaceName(strings.TrimSpace(args[0]))
			return withRepository(cmd.Context(), func(ctx context.Context, repo *app.Repository) error {
				_, err := repo.Submit(ctx, command.RebaseWorkspace{
					WorkspaceName:          name,
					RebasedContentStreamID: ids.ContentStreamID(newStream),
				}, operatorUser)
				if err != nil {
					return err
				}
				ws, err := repo.Workspaces().GetWorkspace(ctx, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "workspace %s now on content stream %s\n", ws.Name, ws.CurrentContentStreamID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&newStream, "content-stream", "", "ID for the rebased content stream (generated when empty)")
	return cmd
}

func newWorkspacesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "workspaces",
		Short: "List workspaces with their content stream and status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepository(cmd.Context(), func(ctx context.Context, repo *app.Repository) error {
				workspaces, err := repo.Workspaces().ListWorkspaces(ctx)
				if err != nil {
					return err
				}
				for _, ws := range workspaces {
					base := string(ws.BaseName)
					if ws.IsRoot() {
						base = "-"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tbase=%s\tstream=%s\tstatus=%s\n",
						ws.Name, base, ws.CurrentContentStreamID, ws.Status)
				}
				return nil
			})
		},
	}
}

func newHealthCommand() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that a running server reports SERVING",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				cfg, err := app.LoadConfig()
				if err != nil {
					return err
				}
				addr = cfg.GRPCAddr
			}
			conn, err := platformgrpc.ConnectHealthy(cmd.Context(), addr, app.HealthService, timeout)
			if err != nil {
				return err
			}
			_ = conn.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: SERVING\n", addr)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gRPC address of the server (defaults to CONTENTGRAPH_GRPC_ADDR)")
	cmd.Flags().DurationVar(&timeout, "timeout", timeouts.HealthWait, "How long to wait for the server")
	return cmd
}

// withRepository opens the configured stores, runs fn and closes them.
func withRepository(ctx context.Context, fn func(context.Context, *app.Repository) error) (err error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	repo, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			log.Printf("close repository: %v", closeErr)
			err = errors.Join(err, closeErr)
		}
	}()
	return fn(ctx, repo)
}
