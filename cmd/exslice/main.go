// exslice turns a captured replay slice into a shared object the resume tool
// can load at a checkpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/colorfulnotion/exslice/common"
	"github.com/colorfulnotion/exslice/config"
	"github.com/colorfulnotion/exslice/exerrors"
	log "github.com/colorfulnotion/exslice/log"
)

type globalFlags struct {
	configPath string
	logLevel   string
	debug      string
	outputDir  string
	jobs       int
	traceJobs  int
	verify     bool
}

func (g *globalFlags) setup(cmd *cobra.Command) config.Config {
	log.InitLogger(g.logLevel)
	if g.debug != "" {
		log.EnableModules(g.debug)
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		fail(err)
	}
	g.applyFlags(&cfg, cmd.Flags())
	if err := cfg.Validate(); err != nil {
		fail(err)
	}
	return cfg
}

// applyFlags copies the build flags the user actually set over cfg, so values
// from the config file survive flags left at their default.
func (g *globalFlags) applyFlags(cfg *config.Config, flags *pflag.FlagSet) {
	if flags.Changed("jobs") {
		cfg.Jobs = g.jobs
	}
	if flags.Changed("trace-jobs") {
		cfg.TraceJobs = g.traceJobs
	}
	if flags.Changed("verify") {
		cfg.Verify = g.verify
	}
}

func fail(err error) {
	log.Error(log.PipelineModule, "exslice failed", "err", err)
	fmt.Fprintf(os.Stderr, "%s %s: %v\n", common.Fail("error"), exerrors.GetErrorCodeWithName(err), err)
	os.Exit(1)
}

func main() {
	var rootCmd = &cobra.Command{
		Use:   "exslice",
		Short: "Compile replay slices into checkpoint shared objects",
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	g := &globalFlags{}
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML config file applied over the defaults")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&g.debug, "debug", "", "Comma separated log modules to enable, or \"all\"")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd.AddCommand(
		newRunCmd(ctx, g),
		newCompileCmd(ctx, g),
		newPlanCmd(g),
		newInspectCmd(g),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
