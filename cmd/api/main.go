// Package main is the firmscope command: it serves the graph API and renders
// datasets to positioned graphs from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/firmscope/core/internal/config"
	"github.com/firmscope/core/internal/observability"
)

// app carries the state shared by every subcommand.
type app struct {
	cfgFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "firmscope",
		Short:         "Builds and serves positioned firm networks.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize()
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	root.AddCommand(newServeCmd(a), newRenderCmd(a))
	return root
}

// initialize reads the config file and environment, then sets up logging.
func (a *app) initialize() error {
	v := viper.New()
	config.SetDefaults(v)
	if err := config.Load(v, a.cfgFile); err != nil {
		observability.InitializeLogger(config.NewDefaultConfig().Logger)
		return err
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		observability.InitializeLogger(config.NewDefaultConfig().Logger)
		return err
	}
	a.cfg = cfg
	observability.InitializeLogger(cfg.Logger)
	return nil
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	observability.Sync()
	if err != nil {
		os.Exit(1)
	}
}
