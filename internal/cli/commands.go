package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tracecore/internal/compliance/models"
	jwttoken "tracecore/internal/jwt_token"
	"tracecore/internal/platform/config"
	"tracecore/internal/platform/postgres"
	id "tracecore/pkg/domain"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.DSN == "" {
				return WrapExitError(ExitCommandError, "migrate", errDSNRequired)
			}
			ctx := cmd.Context()
			pool, err := postgres.Open(ctx, config.Storage{PostgresDSN: opts.DSN, MaxConns: 2})
			if err != nil {
				return WrapExitError(ExitCommandError, "connect postgres", err)
			}
			defer pool.Close()
			if err := postgres.Migrate(ctx, pool); err != nil {
				return WrapExitError(ExitFailure, "migrate", err)
			}
			return opts.output(cmd).emit(map[string]string{"status": "migrated"}, func(w io.Writer) {
				fmt.Fprintln(w, "migrations applied")
			})
		},
	}
}

func newRecomputeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute ENTITY_ID...",
		Short: "Rebuild compliance status projections from check history",
		Long: `Recompute folds each entity's full check history into a fresh
compliance status and stores it. Running it twice yields the same status.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityIDs, err := parseEntityIDs(args)
			if err != nil {
				return err
			}
			operator, err := opts.operator()
			if err != nil {
				return err
			}
			ops, closeFn, err := opts.compliance(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			statuses := make([]*models.Status, 0, len(entityIDs))
			for _, entityID := range entityIDs {
				st, err := ops.Recompute(cmd.Context(), entityID, operator)
				if err != nil {
					return WrapExitError(ExitFailure, fmt.Sprintf("recompute entity %s", entityID), err)
				}
				statuses = append(statuses, st)
			}
			return opts.output(cmd).emit(statuses, func(w io.Writer) {
				for _, st := range statuses {
					fmt.Fprintf(w, "entity %s: compliant=%t total=%d passed=%d failed=%d\n",
						st.EntityID, st.Compliant, st.Total, st.Passed, st.Failed)
				}
			})
		},
	}
}

func newVerifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify ENTITY_ID...",
		Short: "Check stored compliance status against check history",
		Long: `Verify compares each stored compliance status with a fold of the
entity's check history without writing anything.

Exit codes:
  0 - every projection is consistent
  1 - at least one projection diverged (run recompute)
  2 - command error`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityIDs, err := parseEntityIDs(args)
			if err != nil {
				return err
			}
			ops, closeFn, err := opts.compliance(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			results := make([]*models.Verification, 0, len(entityIDs))
			inconsistent := 0
			for _, entityID := range entityIDs {
				v, err := ops.Verify(cmd.Context(), entityID)
				if err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("verify entity %s", entityID), err)
				}
				if !v.Consistent {
					inconsistent++
				}
				results = append(results, v)
			}
			if err := opts.output(cmd).emit(results, func(w io.Writer) {
				for _, v := range results {
					state := "consistent"
					if !v.Consistent {
						state = "INCONSISTENT"
					}
					fmt.Fprintf(w, "entity %s: %s\n", v.EntityID, state)
				}
			}); err != nil {
				return err
			}
			if inconsistent > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d of %d projections inconsistent", inconsistent, len(results)))
			}
			return nil
		},
	}
}

type tokenOptions struct {
	actor  string
	ttl    time.Duration
	key    string
	issuer string
}

func newTokenCommand(opts *RootOptions) *cobra.Command {
	topts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an actor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := id.ParseActorID(topts.actor)
			if err != nil {
				return WrapExitError(ExitCommandError, "token", err)
			}
			token, err := jwttoken.NewJWTService(topts.key, topts.issuer).IssueActorToken(actor, topts.ttl)
			if err != nil {
				return WrapExitError(ExitCommandError, "sign token", err)
			}
			return opts.output(cmd).emit(map[string]string{"actor": actor.String(), "token": token}, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}
	cmd.Flags().StringVar(&topts.actor, "actor", "", "actor placed in the token subject (required)")
	_ = cmd.MarkFlagRequired("actor")
	cmd.Flags().DurationVar(&topts.ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&topts.key, "key", envOr("TRACECORE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"), "HS256 signing key")
	cmd.Flags().StringVar(&topts.issuer, "issuer", envOr("TRACECORE_JWT_ISSUER", "tracecore"), "token issuer")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

