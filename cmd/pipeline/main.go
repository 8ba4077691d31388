package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/pipeline/internal/config"
	"github.com/aristath/pipeline/internal/ctxlog"
	"github.com/aristath/pipeline/internal/discovery"
	"github.com/aristath/pipeline/internal/events"
	"github.com/aristath/pipeline/internal/history"
	"github.com/aristath/pipeline/internal/orchestrator"
	"github.com/aristath/pipeline/internal/pipeline"
	"github.com/aristath/pipeline/internal/report"
	"github.com/aristath/pipeline/internal/runner"
	"github.com/aristath/pipeline/internal/tui"
)

// Exit codes
const (
	exitCompleted = 0
	exitAborted   = 1
	exitUsage     = 2
)

func main() {
	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	file        string
	dryRun      bool
	useTUI      bool
	historyPath string
	listRuns    int
	showRun     string
	logLevel    string
	logFormat   string
	breakers    bool
	forceCancel bool
	saveConfig  string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("pipeline", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.file, "f", "pipeline.yaml", "pipeline definition (.yaml, .yml, .json or .hcl)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "validate and print the plan without running anything")
	fs.BoolVar(&opts.useTUI, "tui", false, "show a live terminal view while running")
	fs.StringVar(&opts.historyPath, "history", "", "record finished runs in this SQLite database")
	fs.IntVar(&opts.listRuns, "list", 0, "list the N most recent runs from -history and exit")
	fs.StringVar(&opts.showRun, "show", "", "print a recorded run from -history and exit")
	fs.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")
	fs.BoolVar(&opts.breakers, "breakers", false, "guard each program with a circuit breaker")
	fs.BoolVar(&opts.forceCancel, "force-cancel", false, "kill running commands when the run aborts")
	fs.StringVar(&opts.saveConfig, "save-config", "", "write the effective config of -f to this path and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if (opts.listRuns > 0 || opts.showRun != "") && opts.historyPath == "" {
		return nil, errors.New("-list and -show need -history")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitCompleted
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	logOut := stderr
	if opts.useTUI {
		logOut = io.Discard // the alt screen owns the terminal
	}
	logger := ctxlog.New(opts.logLevel, opts.logFormat, logOut)
	ctx = ctxlog.WithLogger(ctx, logger)

	if opts.listRuns > 0 || opts.showRun != "" {
		return inspectHistory(ctx, opts, stdout, stderr)
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return exitUsage
	}

	p, err := pipeline.LoadFile(opts.file, *cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	if opts.saveConfig != "" {
		if err := config.Save(&p.Config, opts.saveConfig); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUsage
		}
		logger.Info("config saved", "path", opts.saveConfig)
		return exitCompleted
	}

	if opts.dryRun {
		plan, err := orchestrator.DryRun(p.Tasks, p.Config)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUsage
		}
		programs := discovery.Discover(p.Tasks, nil)
		fmt.Fprint(stdout, report.Plan(plan, p.Tasks, programs, p.Config.TimeoutMultiplier))
		if missing := discovery.Missing(programs); len(missing) > 0 {
			logger.Warn("programs not found", "count", len(missing))
		}
		return exitCompleted
	}

	// Create ProcessManager for subprocess tracking
	pm := runner.NewProcessManager()

	bus := events.NewEventBus()
	defer bus.Close()

	coordOpts := []orchestrator.Option{
		orchestrator.WithRunner(runner.NewShellRunner(pm)),
		orchestrator.WithEventBus(bus),
	}
	if opts.breakers {
		coordOpts = append(coordOpts, orchestrator.WithCircuitBreakers(
			orchestrator.NewBreakerRegistry(orchestrator.DefaultBreakerSettings(), logger)))
	}
	if opts.forceCancel {
		coordOpts = append(coordOpts, orchestrator.WithForceCancel())
	}
	coord := orchestrator.NewCoordinator(p.Config, coordOpts...)

	// Kill tracked subprocesses on the first signal; a second one uses the
	// default handler and exits.
	stopKill := context.AfterFunc(ctx, func() {
		if err := pm.KillAll(); err != nil {
			logger.Error("killing subprocesses", "error", err)
		}
	})
	defer stopKill()

	var res *orchestrator.RunResult
	if opts.useTUI {
		res, err = runWithTUI(ctx, coord, bus, p, stdout)
	} else {
		res, err = coord.Run(ctx, p.Tasks)
	}
	if res == nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	fmt.Fprint(stdout, report.Run(res))

	if opts.historyPath != "" {
		if err := saveHistory(opts.historyPath, p.Name, res); err != nil {
			logger.Error("recording run history", "error", err)
		}
	}

	if res.Status != orchestrator.RunCompleted {
		return exitAborted
	}
	return exitCompleted
}

// runWithTUI runs the pipeline behind the live view. Quitting the view
// cancels the run.
func runWithTUI(ctx context.Context, coord *orchestrator.Coordinator, bus *events.EventBus, p *pipeline.Pipeline, stdout io.Writer) (*orchestrator.RunResult, error) {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	names := make([]string, 0, len(p.Tasks))
	for _, task := range p.Tasks {
		names = append(names, task.Name)
	}
	prog := tea.NewProgram(tui.New(bus, names), tea.WithAltScreen(), tea.WithOutput(stdout), tea.WithContext(ctx))

	type outcome struct {
		res *orchestrator.RunResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := coord.Run(runCtx, p.Tasks)
		done <- outcome{res, err}
		prog.Send(tui.RunDoneMsg{Result: res, Err: err})
	}()

	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		ctxlog.FromContext(ctx).Error("tui exited", "error", err)
	}

	cancelRun()
	select {
	case o := <-done:
		return o.res, o.err
	case <-time.After(30 * time.Second):
		return nil, errors.New("run did not stop within 30s of leaving the view")
	}
}

func saveHistory(path, name string, res *orchestrator.RunResult) error {
	// Recording must survive the run context being cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := history.NewSQLiteStore(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SaveRun(ctx, name, res)
}

func inspectHistory(ctx context.Context, opts *options, stdout, stderr io.Writer) int {
	store, err := history.NewSQLiteStore(ctx, opts.historyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer store.Close()

	if opts.showRun != "" {
		r, err := store.GetRun(ctx, opts.showRun)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUsage
		}
		fmt.Fprint(stdout, report.History(r))
		return exitCompleted
	}

	runs, err := store.ListRuns(ctx, opts.listRuns)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	fmt.Fprint(stdout, report.Runs(runs))
	return exitCompleted
}
