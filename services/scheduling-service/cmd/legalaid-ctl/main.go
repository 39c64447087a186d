package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/legalaid-connect/legalaid/libs/config"
	"github.com/legalaid-connect/legalaid/libs/db"
	"github.com/legalaid-connect/legalaid/libs/grpcx"
	"github.com/legalaid-connect/legalaid/libs/reqid"
	"github.com/legalaid-connect/legalaid/libs/runtime"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/availability"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/cases"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/directory"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/matching"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/notify"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/outbox"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/store/pgstore"
)

func main() {
	ctx, stop := runtime.SignalContext()
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "legalaid-ctl",
		Short:        "Operator tooling for the scheduling service",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(matchCmd())
	rootCmd.AddCommand(availabilityCmd())
	rootCmd.AddCommand(healthCmd())
	return rootCmd
}

func openPool(ctx context.Context) (*db.Pool, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	return db.Open(ctx, dbURL)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the scheduling schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := pgstore.Migrator(pool).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := pgstore.Migrator(pool).Status(ctx)
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	})
	return cmd
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-8s %-32s %-8s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, at := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				at = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-8d %-32s %-8s %s\n", s.Version, s.Name, status, at)
	}
}

func matchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match <case-id>",
		Short: "Run provider matching for a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || caseID <= 0 {
				return fmt.Errorf("case id must be a positive integer, got %q", args[0])
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := runtime.NewLogger("legalaid-ctl")
			dir := directory.NewPostgres(pool)
			sink := notify.NewOutboxSink(pool, outbox.NewRepository())
			dispatcher := notify.NewDispatcher(sink, sink, dir, logger, notify.DispatcherConfig{})

			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				dispatcher.Run(runCtx)
			}()

			res, err := matching.NewEngine(pgstore.New(pool), cases.NewPostgres(pool), dir, dispatcher, logger).MatchCase(ctx, caseID)
			cancel()
			<-done
			if err != nil {
				return err
			}
			printMatches(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func printMatches(w io.Writer, res matching.Result) {
	fmt.Fprintf(w, "%d match(es)\n", res.Total())
	for _, p := range append(append([]model.Provider{}, res.Lawyers...), res.NGOs...) {
		fmt.Fprintf(w, "  %-14s %-28s %s\n", p.Party.Key(), p.Name, p.Category)
	}
}

func availabilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Print a provider's slot grid for one day",
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("provider-role")
			id, _ := cmd.Flags().GetInt64("provider-id")
			date, _ := cmd.Flags().GetString("date")
			freeOnly, _ := cmd.Flags().GetBool("free")

			provider, err := model.ParseProvider(role, id)
			if err != nil {
				return err
			}
			if date == "" {
				date = time.Now().Format(availability.DateLayout)
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			cfg, err := availability.ConfigFromEnv()
			if err != nil {
				return err
			}
			grid, err := availability.NewGrid(pgstore.New(pool), cfg)
			if err != nil {
				return err
			}
			slots, err := grid.Compute(ctx, availability.Query{Provider: provider, Date: date})
			if err != nil {
				return err
			}
			if freeOnly {
				slots = availability.Free(slots)
			}
			printSlots(cmd.OutOrStdout(), slots)
			return nil
		},
	}
	cmd.Flags().String("provider-role", "lawyer", "Provider role (lawyer or ngo)")
	cmd.Flags().Int64("provider-id", 0, "Provider id")
	cmd.Flags().String("date", "", "Day to show as YYYY-MM-DD (default today)")
	cmd.Flags().Bool("free", false, "Only print available slots")
	_ = cmd.MarkFlagRequired("provider-id")
	return cmd
}

func printSlots(w io.Writer, slots []availability.Slot) {
	for _, s := range slots {
		fmt.Fprintf(w, "%-6s %-22s %s\n", s.Label, s.Display, s.Status)
	}
}

func healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query a running service's gRPC health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			conn, err := grpcx.Dial(cmd.Context(), addr, grpcx.DialOptions{Timeout: timeout})
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(reqid.With(cmd.Context(), reqid.New()), timeout)
			defer cancel()
			resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
			if err != nil {
				return fmt.Errorf("health check: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.GetStatus())
			if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("%s is %s", addr, resp.GetStatus())
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "localhost:9080", "gRPC address of the service")
	cmd.Flags().Duration("timeout", 3*time.Second, "Dial and request timeout")
	return cmd
}
