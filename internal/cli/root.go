// Package cli implements tracectl, the operator command line for a tracecore
// deployment.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"tracecore/internal/compliance/models"
	"tracecore/internal/platform/logger"
	id "tracecore/pkg/domain"
)

// ComplianceOps is the slice of the compliance service tracectl drives.
type ComplianceOps interface {
	Recompute(ctx context.Context, entityID id.EntityID, actor id.ActorID) (*models.Status, error)
	Verify(ctx context.Context, entityID id.EntityID) (*models.Verification, error)
}

// Backend names the stores tracectl connects to and the actor it operates as.
type Backend struct {
	DSN      string
	RedisURL string
	Operator id.ActorID
	Logger   *slog.Logger
}

// Opener connects to the backend. The returned func releases it.
type Opener func(ctx context.Context, b Backend) (ComplianceOps, func(), error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format   string
	DSN      string
	RedisURL string
	Operator string
	LogLevel string

	open   Opener
	logger *slog.Logger
}

var validFormats = []string{"text", "json"}

// NewRootCommand builds tracectl. open is used by commands that need the
// compliance service; nil selects the Postgres backend.
func NewRootCommand(open Opener) *cobra.Command {
	if open == nil {
		open = OpenPostgres
	}
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "tracectl",
		Short: "Operate a tracecore registry",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, validFormats))
			}
			opts.logger = logger.NewWithWriter(cmd.ErrOrStderr(), opts.LogLevel)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", os.Getenv("TRACECORE_POSTGRES_DSN"), "postgres connection string")
	cmd.PersistentFlags().StringVar(&opts.RedisURL, "redis-url", os.Getenv("TRACECORE_REDIS_URL"), "redis url of the compliance status cache, if the servers use one")
	cmd.PersistentFlags().StringVar(&opts.Operator, "operator", envOr("TRACECORE_ADMIN_ACTOR", "admin"), "admin actor tracectl operates as")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level for diagnostics on stderr")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newRecomputeCommand(opts))
	cmd.AddCommand(newVerifyCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	return cmd
}

func (o *RootOptions) output(cmd *cobra.Command) *output {
	return &output{format: o.Format, w: cmd.OutOrStdout()}
}

func (o *RootOptions) operator() (id.ActorID, error) {
	actor, err := id.ParseActorID(o.Operator)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "operator", err)
	}
	return actor, nil
}

func (o *RootOptions) compliance(ctx context.Context) (ComplianceOps, func(), error) {
	operator, err := o.operator()
	if err != nil {
		return nil, nil, err
	}
	ops, closeFn, err := o.open(ctx, Backend{DSN: o.DSN, RedisURL: o.RedisURL, Operator: operator, Logger: o.logger})
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "connect backend", err)
	}
	return ops, closeFn, nil
}

func parseEntityIDs(args []string) ([]id.EntityID, error) {
	out := make([]id.EntityID, 0, len(args))
	for _, a := range args {
		entityID, err := id.ParseEntityID(a)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("bad entity id %q", a), err)
		}
		out = append(out, entityID)
	}
	return out, nil
}

// Execute runs tracectl and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand(nil)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}
