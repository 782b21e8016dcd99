package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zen-systems/contentflow/pkg/config"
	"github.com/zen-systems/contentflow/pkg/logger"
)

// app holds what every command needs once flags and config are loaded.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "contentflow",
		Short: "Content production pipelines driven by LLMs",
		Long: `Contentflow runs content plans: market research, content planning,
article writing, fact checking, podcast and video production and
multi-platform publishing. Each plan is a pipeline of model prompts, tool
calls and functions; outputs are written under the output directory.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}

	pflags := cmd.PersistentFlags()
	pflags.String("config", "", "config file (default ~/.contentflow/config.yaml)")
	pflags.String("log-level", "", "log level: debug, info, warn or error")
	pflags.String("log-format", "", "log format: text or json")
	pflags.String("output-dir", "", "directory plans write their files to")
	pflags.String("data-dir", "", "directory for run history and evidence")

	bindFlags(a.v, pflags, map[string]string{
		"log-level":  "logging.level",
		"log-format": "logging.format",
		"output-dir": "output_dir",
		"data-dir":   "data_dir",
	})

	cmd.AddCommand(
		a.runCmd(),
		a.validateCmd(),
		a.plansCmd(),
		a.toolsCmd(),
		a.serveCmd(),
		a.runsCmd(),
		a.routesCmd(),
		versionCmd(),
	)
	return cmd
}

// bindFlags binds each named flag to its config key, so a flag set on the
// command line wins over the config file and environment.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		if f := flags.Lookup(flag); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

func (a *app) load(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFrom(a.v, path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.logger = logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Skip config loading so version works without a home directory.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "contentflow %s (commit %s, built %s)\n", version, gitCommit, buildDate)
		},
	}
}
