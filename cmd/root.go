package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/haulboard/app"
	"github.com/kilianp07/haulboard/config"
	"github.com/kilianp07/haulboard/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "haulboard",
	Short:        "Transport planning board service",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json); empty reads HB_ environment variables only")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig reads the configuration and applies the logging section.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.FileConfig()); err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	return cfg, nil
}

// withService builds the service, hands it to fn and closes it afterwards.
func withService(fn func(ctx context.Context, svc *app.Service) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return fn(ctx, svc)
}

func run(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *app.Service) error {
		return svc.Run(ctx)
	})
}
