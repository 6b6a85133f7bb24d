package cli

import (
	"fmt"
	"time"

	"github.com/DanielMTyler/ellie-sub000/internal/store"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newTraceCmd() *cobra.Command {
	var dbPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "trace <run-id>",
		Short: "Show the recorded frames of a traced run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = cfg.Trace.DBPath
			}
			if dbPath == "" {
				return fmt.Errorf("no trace database: pass --db or set trace.db_path")
			}
			st, err := store.NewSQLiteStore(dbPath, logger)
			if err != nil {
				return fmt.Errorf("open trace db: %w", err)
			}
			defer st.Close()

			ctx := cmd.Context()
			run, err := st.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %q not found", args[0])
			}
			frames, err := st.ListFrames(ctx, run.ID, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			scenarioName := run.Scenario
			if scenarioName == "" {
				scenarioName = "no scenario"
			}
			fmt.Fprintf(out, "Run %s (%s, %d fps) started %s\n",
				run.ID, scenarioName, run.TargetFPS, humanize.Time(run.StartedAt))
			if len(frames) == 0 {
				fmt.Fprintln(out, "No frames recorded.")
				return nil
			}

			const row = "%-8s  %-10s  %-10s  %-7s  %-8s  %-4s  %-6s  %s\n"
			fmt.Fprintf(out, row, "FRAME", "DELTA", "ELAPSED", "EVENTS", "DEFERRED", "OK", "FAILED", "LIVE")
			fmt.Fprintf(out, row, "-----", "-----", "-------", "------", "--------", "--", "------", "----")
			for _, f := range frames {
				fmt.Fprintf(out, row,
					fmt.Sprint(f.Frame), f.Delta.Round(time.Microsecond), f.Elapsed.Round(time.Microsecond),
					fmt.Sprint(f.EventsDelivered), fmt.Sprint(f.EventsDeferred),
					fmt.Sprint(f.Succeeded), fmt.Sprint(f.Failed), fmt.Sprint(f.Live))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Trace database (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum frames to show (0 = all)")

	return cmd
}
