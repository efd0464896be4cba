package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/zonedispatch/app"
	"github.com/kilianp07/zonedispatch/config"
	"github.com/kilianp07/zonedispatch/infra/logger"
	"github.com/kilianp07/zonedispatch/pkg/export"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "zonedispatch",
	Short:        "Zone aware task dispatch for hotel staff",
	SilenceUsage: true,
	RunE:         run,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dispatch service",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.AddCommand(runCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}

func printJSON(cmd *cobra.Command, v any) error {
	return export.WriteJSON(cmd.OutOrStdout(), v)
}
