package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DanielMTyler/ellie-sub000/internal/frame"
	"github.com/DanielMTyler/ellie-sub000/internal/scenario"
	"github.com/DanielMTyler/ellie-sub000/internal/store"
	"github.com/DanielMTyler/ellie-sub000/pkg/model"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type runOptions struct {
	fps       int
	frames    uint64
	untilIdle bool
	noLimit   bool
	strict    bool
	traceDB   string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [scenario.yaml]",
		Short: "Run the frame loop, optionally with a scenario attached",
		Long: `Runs the frame loop at the configured rate. With a scenario file the
scenario's chains are attached before the first frame and the loop stops once
every manager is idle. Without one the loop runs until interrupted or until
--frames frames have run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sc *scenario.Scenario
			if len(args) == 1 {
				s, err := scenario.Load(args[0])
				if err != nil {
					return err
				}
				sc = s
			}
			return runScenario(cmd, sc, opts)
		},
	}

	cmd.Flags().IntVar(&opts.fps, "fps", 0, "Target frames per second, overrides config (0 runs unpaced)")
	cmd.Flags().Uint64Var(&opts.frames, "frames", 0, "Stop after this many frames (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.untilIdle, "until-idle", true, "Stop once no process or queued event is left (scenario runs only)")
	cmd.Flags().BoolVar(&opts.noLimit, "no-limit", false, "Drain the whole event queue every frame")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Panic on scheduler contract violations")
	cmd.Flags().StringVar(&opts.traceDB, "trace-db", "", "Record frame stats to this SQLite database")

	return cmd
}

func runScenario(cmd *cobra.Command, sc *scenario.Scenario, opts runOptions) error {
	fcfg := frame.FromConfig(cfg)
	if cmd.Flags().Changed("fps") {
		fcfg.TargetFPS = opts.fps
	}
	if cmd.Flags().Changed("frames") {
		fcfg.MaxFrames = opts.frames
	}
	if cmd.Flags().Changed("strict") {
		fcfg.Strict = opts.strict
	}
	if opts.noLimit {
		fcfg.LimitTime = false
	}
	if sc != nil {
		fcfg.StopWhenIdle = opts.untilIdle
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPath := cfg.Trace.DBPath
	if opts.traceDB != "" {
		dbPath = opts.traceDB
	}

	var loopOpts []frame.Option
	var st *store.SQLiteStore
	runID := "run_" + uuid.New().String()
	if dbPath != "" {
		s, err := openTrace(ctx, dbPath, runID, sc, fcfg.TargetFPS)
		if err != nil {
			return err
		}
		defer s.Close()
		st = s
		loopOpts = append(loopOpts, frame.WithRecorder(store.RunRecorder{Store: st, RunID: runID}))
	}

	loop := frame.NewLoop(fcfg, logger, loopOpts...)
	defer loop.Close()

	if sc != nil {
		in, err := sc.Build(loop, logger)
		if err != nil {
			return err
		}
		defer in.Release()
		logger.Info("scenario attached", "scenario", sc.Name, "chains", len(sc.Chains))
	}

	started := time.Now()
	err := loop.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	var totals model.Totals
	for _, m := range loop.Managers() {
		totals = totals.Add(m.Totals())
	}
	printSummary(cmd.OutOrStdout(), loop, totals, time.Since(started))

	if st != nil {
		sum, err := st.Summarize(context.Background(), runID)
		if err != nil {
			return fmt.Errorf("summarize run: %w", err)
		}
		if sum != nil {
			printRunSummary(cmd.OutOrStdout(), sum)
		}
	}
	return nil
}

func openTrace(ctx context.Context, path, runID string, sc *scenario.Scenario, fps int) (*store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate trace db: %w", err)
	}
	run := &model.Run{ID: runID, TargetFPS: fps, StartedAt: time.Now().UTC()}
	if sc != nil {
		run.Scenario = sc.Name
	}
	if err := st.CreateRun(ctx, run); err != nil {
		st.Close()
		return nil, fmt.Errorf("create run: %w", err)
	}
	logger.Info("tracing frames", "db", path, "run_id", runID)
	return st, nil
}

func printSummary(w io.Writer, loop *frame.Loop, totals model.Totals, wall time.Duration) {
	stats := loop.Bus().Stats()
	fmt.Fprintf(w, "Frames:     %s in %s\n", humanize.Comma(int64(loop.Frame())), wall.Round(time.Millisecond))
	fmt.Fprintf(w, "Processes:  %s succeeded, %s failed, %s aborted\n",
		humanize.Comma(int64(totals.Succeeded)), humanize.Comma(int64(totals.Failed)), humanize.Comma(int64(totals.Aborted)))
	fmt.Fprintf(w, "Events:     %s published, %s delivered, %s dropped, %s overruns\n",
		humanize.Comma(int64(stats.Published)), humanize.Comma(int64(stats.Deliveries)),
		humanize.Comma(int64(stats.Dropped)), humanize.Comma(int64(stats.Overruns)))
}

func printRunSummary(w io.Writer, s *model.RunSummary) {
	fmt.Fprintf(w, "Run:        %s\n", s.RunID)
	fmt.Fprintf(w, "Avg delta:  %s, max frame %s\n", s.AvgDelta.Round(time.Microsecond), s.MaxElapsed.Round(time.Microsecond))
	fmt.Fprintf(w, "Deferred:   %s events over %s overrun frames\n",
		humanize.Comma(int64(s.EventsDeferred)), humanize.Comma(int64(s.Overruns)))
}
