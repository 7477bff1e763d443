package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/foerg/mbsim-env-sub002/internal/config"
	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/mbs"
	"github.com/foerg/mbsim-env-sub002/internal/metrics"
	"github.com/foerg/mbsim-env-sub002/internal/scenarios"
	"github.com/foerg/mbsim-env-sub002/internal/sim"
	"github.com/foerg/mbsim-env-sub002/internal/storage"
	"github.com/foerg/mbsim-env-sub002/internal/viz"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
)

var (
	dataDir    string
	verbosity  int
	theme      string
	configFile string
	preset     string
	dt         float64
	duration   float64
	seed       int64
	integrator string
	strategy   string
	adaptive   bool
	plotForces bool
	outFile    string
)

// stabilityLimit bounds the state entries a run may reach before it is
// counted as unstable.
const stabilityLimit = 1e6

func main() {
	rootCmd := &cobra.Command{
		Use:   "mbsim",
		Short: "multibody simulation with rigid contacts and friction",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			viz.SetTheme(theme)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return viz.RunInteractive(scenarios.NewRegistry(), logr.Discard())
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".mbsim", "data directory")
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbose", "v", 0, "log verbosity")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", "blueprint", "colour theme of the terminal views: "+strings.Join(viz.ThemeNames(), ", "))

	runCmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "run simulation and store the results",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)

	liveCmd := &cobra.Command{
		Use:   "live [scenario]",
		Short: "run simulation with live visualization",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addRunFlags(liveCmd)

	compareCmd := &cobra.Command{
		Use:   "compare [scenario] [integrator1] [integrator2] ...",
		Short: "compare integrators on the same scenario",
		Args:  cobra.MinimumNArgs(2),
		RunE:  compareIntegrators,
	}
	addRunFlags(compareCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().BoolVar(&plotForces, "forces", false, "plot link forces instead of states")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")

	scenariosCmd := &cobra.Command{
		Use:   "scenarios",
		Short: "list built-in scenarios",
		RunE:  listScenarios,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [scenario]",
		Short: "list available presets for a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for scenario: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [scenario] [path]",
		Short: "write the default config of a scenario",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.ForScenario(args[0])
			if err != nil {
				return err
			}
			if preset != "" {
				if cfg = config.GetPreset(args[0], preset); cfg == nil {
					return fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(args[0]))
				}
			}
			return config.Save(args[1], cfg)
		},
	}
	initCmd.Flags().StringVar(&preset, "preset", "", "start from a preset")

	rootCmd.AddCommand(runCmd, liveCmd, compareCmd, listCmd, plotCmd, exportCmd, scenariosCmd, presetsCmd, initCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed")
	cmd.Flags().StringVar(&integrator, "integrator", "", "integrator (default: the scenario's)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "contact solver strategy: fixpoint, gaussseidel or rootfinding")
	cmd.Flags().BoolVar(&adaptive, "adaptive", false, "adaptive step size")
}

func newLogger() logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, args)
			return
		}
		fmt.Fprintln(os.Stderr, args)
	}, funcr.Options{Verbosity: verbosity})
}

// resolveConfig layers the config file or preset, then explicit flags, over
// the scenario defaults.
func resolveConfig(cmd *cobra.Command, name string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case configFile != "":
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if name != "" && name != cfg.Scenario {
			return nil, fmt.Errorf("config %s describes %s, not %s", configFile, cfg.Scenario, name)
		}
	case preset != "":
		if name == "" {
			name = config.DefaultScenario
		}
		cfg = config.GetPreset(name, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(name))
		}
	default:
		if name == "" {
			name = config.DefaultScenario
		}
		cfg, err = config.ForScenario(name)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("strategy") {
		cfg.Solver.Strategy = strategy
	}
	if flags.Changed("adaptive") {
		cfg.Adaptive = adaptive
	}
	return cfg, cfg.Validate()
}

func scenarioArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// build assembles the configured scenario and the integrator to run it with.
func build(registry *scenarios.Registry, cfg *config.Config, log logr.Logger) (*mbs.Solver, dynamo.Integrator, string, error) {
	opts, err := cfg.Solver.Options()
	if err != nil {
		return nil, nil, "", err
	}
	s, err := registry.Build(cfg.Scenario, cfg.Params, opts, log.WithName(cfg.Scenario))
	if err != nil {
		return nil, nil, "", err
	}
	name, err := cfg.IntegratorName(registry)
	if err != nil {
		return nil, nil, "", err
	}
	integ, err := registry.Integrator(name, log)
	if err != nil {
		return nil, nil, "", err
	}
	return s, integ, name, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, scenarioArg(args))
	if err != nil {
		return err
	}
	log := newLogger()

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	registry := scenarios.NewRegistry()
	s, integ, integName, err := build(registry, cfg, log)
	if err != nil {
		return err
	}

	simulator := sim.New(s, integ, log.WithName("sim"))
	simulator.AddMetric(metrics.NewEnergyDrift(s))
	simulator.AddMetric(metrics.NewConstraintViolation(s))
	simulator.AddMetric(metrics.NewPeakForce(s))
	simulator.AddMetric(metrics.NewStability(stabilityLimit))
	recorder := sim.NewSnapshotRecorder(s, 1)
	simulator.AddObserver(recorder)

	fmt.Printf("running %s with %s...\n", cfg.Scenario, integName)
	start := time.Now()

	result, runErr := simulator.Run(cmd.Context(), s.InitialState(), cfg.RunConfig())
	if result == nil {
		return runErr
	}
	elapsed := time.Since(start)
	if recorder.Err != nil {
		log.Error(recorder.Err, "link forces incomplete")
	}

	meta := storage.RunMetadata{
		Scenario:   cfg.Scenario,
		Seed:       cfg.Seed,
		Dt:         cfg.Dt,
		Duration:   cfg.Duration,
		Integrator: integName,
		Strategy:   cfg.Solver.Strategy,
		Params:     cfg.Params.Map(),
	}
	if runErr != nil {
		meta.Error = runErr.Error()
	}
	var forces *storage.ForceTable
	if len(s.AllLinks()) > 0 {
		forces = storage.ForceTableFromSnapshots(recorder.Snapshots)
	}
	runID, err := st.Save(storage.Run{Meta: meta, Result: result, Forces: forces})
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d\n", result.StepsTaken)
	fmt.Printf("impacts: %d\n", result.Impacts)
	fmt.Println("\nmetrics:")
	for name, val := range result.Metrics {
		fmt.Printf("  %s: %.6g\n", name, val)
	}
	if snap, ok := recorder.Last(); ok {
		fmt.Printf("\nfinal state (t=%.4f):\n", snap.T)
		for _, b := range snap.Bodies {
			fmt.Printf("  %-16s r=%s v=%s\n", b.Path, formatVec(b.Position[:]), formatVec(b.Velocity[:]))
		}
		for _, l := range snap.Links {
			fmt.Printf("  %-16s forces=%s\n", l.Name, formatVec(l.Forces))
		}
	}

	return runErr
}

func formatVec(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.4g", x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, scenarioArg(args))
	if err != nil {
		return err
	}

	// Log lines would tear the alternate screen.
	s, integ, _, err := build(scenarios.NewRegistry(), cfg, logr.Discard())
	if err != nil {
		return err
	}
	return viz.RunLive(viz.NewModel(s, integ, cfg.Scenario, cfg.Dt, cfg.Duration))
}

func compareIntegrators(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}
	names := args[1:]
	registry := scenarios.NewRegistry()

	factory := func(idx int, _ int64) (*sim.Simulator, dynamo.State, error) {
		c := *cfg
		c.Integrator = names[idx]
		s, integ, _, err := build(registry, &c, logr.Discard())
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", names[idx], err)
		}
		simulator := sim.New(s, integ, logr.Discard())
		simulator.AddMetric(metrics.NewEnergyDrift(s))
		simulator.AddMetric(metrics.NewConstraintViolation(s))
		return simulator, s.InitialState(), nil
	}

	fmt.Printf("comparing integrators for %s (dt=%.4g, duration=%.2gs)\n\n", cfg.Scenario, cfg.Dt, cfg.Duration)
	start := time.Now()
	results, err := sim.NewEnsemble(factory, len(names), cfg.Seed).Run(cmd.Context(), cfg.RunConfig())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTEGRATOR\tSTEPS\tIMPACTS\tENERGY_DRIFT\tVIOLATION")
	for i, r := range results {
		fmt.Fprintf(w, "%s\t%d\t%d\t%.3e\t%.3e\n",
			names[i],
			r.StepsTaken,
			r.Impacts,
			r.Metrics["energy_drift"],
			r.Metrics["constraint_violation"],
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\ntotal %v\n", time.Since(start))
	return nil
}

func listScenarios(cmd *cobra.Command, args []string) error {
	registry := scenarios.NewRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tINTEGRATOR\tDESCRIPTION")
	for _, name := range registry.List() {
		sc, err := registry.Get(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", sc.Name, sc.Integrator, sc.Description)
	}
	fmt.Fprintf(w, "\nintegrators: %s\n", strings.Join(registry.ListIntegrators(), ", "))
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENARIO\tTIME\tDURATION\tDT\tINTEG\tSTRATEGY\tSTEPS\tSTATUS")

	for _, run := range runs {
		status := "ok"
		if run.Error != "" {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4gs\t%s\t%s\t%d\t%s\n",
			run.ID,
			run.Scenario,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Integrator,
			run.Strategy,
			run.Steps,
			status,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	var series [][]float64
	var captions []string
	if plotForces {
		ft, err := st.LoadForces(runID)
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("run %s has no link forces", runID)
		}
		if err != nil {
			return err
		}
		for _, name := range ft.Header {
			series = append(series, ft.Column(name))
			captions = append(captions, name)
		}
	} else {
		states, _, err := st.LoadStates(runID)
		if err != nil {
			return err
		}
		if len(states) > 0 {
			for i := range states[0] {
				col := make([]float64, len(states))
				for j := range states {
					if i < len(states[j]) {
						col[j] = states[j][i]
					}
				}
				series = append(series, col)
				captions = append(captions, fmt.Sprintf("x%d vs time", i))
			}
		}
	}

	if len(series) == 0 || len(series[0]) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scenario: %s\n", meta.Scenario)
	fmt.Printf("samples: %d\n\n", len(series[0]))

	maxPlots := 6
	if len(series) > maxPlots {
		series = series[:maxPlots]
	}
	for i, data := range series {
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(captions[i]),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	rows, times, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	forces, err := st.LoadForces(runID)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		forces = nil
	}

	result := &dynamo.Result{
		Times:       times,
		States:      make([]dynamo.State, len(rows)),
		Metrics:     meta.Metrics,
		EnergyDrift: meta.EnergyDrift,
		StepsTaken:  meta.Steps,
		Impacts:     meta.Impacts,
	}
	for i, r := range rows {
		result.States[i] = r
	}

	var w io.Writer = os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return storage.ExportJSON(w, *meta, result, forces)
}
