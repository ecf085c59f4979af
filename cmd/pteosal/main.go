package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zboralski/pteosal/internal/config"
	"github.com/zboralski/pteosal/internal/kernel"
	glog "github.com/zboralski/pteosal/internal/log"
	"github.com/zboralski/pteosal/internal/scenario"
	"github.com/zboralski/pteosal/internal/ui/colorize"
)

var (
	configPath string
	kernelName string
	verbose    bool
	quiet      bool
	parallel   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pteosal",
		Short: "Run the POSIX threads OS abstraction layer against a kernel",
		Long: `pteosal drives the operating-system abstraction layer a POSIX threads
library sits on: thread create/start/exit/join/delete, mutexes, counting
semaphores, cancellable pends, thread-local storage and atomics, all built on
a minimal kernel's clone, exit, priority, sleep and semaphore calls.

Two kernels are available:
  sim   goroutine-backed in-memory kernel with fault injection
  host  Linux threads pinned with LockOSThread, priorities mapped to nice

Examples:
  pteosal run                          # Run every scenario on the sim kernel
  pteosal run handshake/join -v        # One scenario with its event trace
  pteosal run --kernel host -p 4       # Host kernel, four scenarios at a time
  pteosal config                       # Show the effective configuration`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&kernelName, "kernel", "", "kernel backend (sim or host)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "quiet mode (failures + stats only)")

	runCmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run scenarios (all when none are named)",
		RunE:  runScenarios,
	}
	runCmd.Flags().IntVarP(&parallel, "parallel", "p", 1, "scenarios to run at once")
	rootCmd.AddCommand(runCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered scenarios",
		Args:  cobra.NoArgs,
		RunE:  listScenarios,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show kernel and layer limits",
		Args:  cobra.NoArgs,
		RunE:  showInfo,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  showConfig,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies command-line overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if kernelName != "" {
		cfg.Kernel = kernelName
	}
	if verbose {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	glog.Init(cfg.Debug)
	return cfg, nil
}

// kernelFactory returns a constructor for the configured kernel backend.
func kernelFactory(cfg config.Config) (scenario.KernelFactory, error) {
	switch cfg.Kernel {
	case config.KernelSim:
		return func() (kernel.Kernel, error) {
			return kernel.NewSim(
				kernel.WithMaxThreads(cfg.Sim.MaxThreads),
				kernel.WithMaxSemaphores(cfg.Sim.MaxSemaphores),
				kernel.WithTimerFreq(cfg.TimerFreq),
				kernel.WithDefaultPriority(cfg.Priority.Default),
			), nil
		}, nil
	case config.KernelHost:
		return func() (kernel.Kernel, error) {
			return kernel.NewHost(
				kernel.WithHostTimerFreq(cfg.TimerFreq),
				kernel.WithHostPriorities(cfg.Priority.Min, cfg.Priority.Max, cfg.Priority.Default),
			)
		}, nil
	}
	return nil, fmt.Errorf("unknown kernel %q", cfg.Kernel)
}

func runScenarios(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	factory, err := kernelFactory(cfg)
	if err != nil {
		return err
	}

	r := scenario.NewRunner(cfg, factory)
	r.Logger = glog.Default()
	r.Parallel = parallel

	if !quiet {
		printHeader(cfg, len(args))
	}

	results, err := r.RunAll(context.Background(), args)
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if !res.Passed() {
			failed++
		}
		if quiet && res.Passed() {
			continue
		}
		fmt.Println(formatResult(res))
		if verbose {
			for _, e := range res.Events {
				fmt.Println(formatEvent(e))
			}
		}
	}

	printStats(results, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(results))
	}
	return nil
}

func listScenarios(cmd *cobra.Command, args []string) error {
	for _, d := range scenario.List() {
		fmt.Printf("%-32s %s\n", colorize.Name(d.Name), colorize.Detail(d.Description))
	}
	return nil
}

func showInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	host := "available"
	if _, err := kernel.NewHost(); err != nil {
		host = err.Error()
	}

	fmt.Printf("%s %s\n", colorize.Detail("Kernel:"), colorize.Name(cfg.Kernel))
	fmt.Printf("%s %s\n", colorize.Detail("Host kernel:"), host)
	fmt.Printf("%s %d..%d %s %d\n",
		colorize.Detail("Priorities:"), cfg.Priority.Min, cfg.Priority.Max,
		colorize.Detail("default"), cfg.Priority.Default)
	fmt.Printf("%s %d  %s %d  %s %dHz\n",
		colorize.Detail("TLS keys:"), cfg.MaxTLS,
		colorize.Detail("Min stack:"), cfg.MinStackSize,
		colorize.Detail("Timer:"), cfg.TimerFreq)
	fmt.Printf("%s %v\n", colorize.Detail("Cancel poll:"), cfg.CancelPollInterval)
	fmt.Printf("%s %d\n", colorize.Detail("Scenarios:"), scenario.DefaultRegistry.Count())
	return nil
}

func showConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	fmt.Print(colorize.YAML(string(data)))
	if !strings.HasSuffix(string(data), "\n") {
		fmt.Println()
	}
	return nil
}
