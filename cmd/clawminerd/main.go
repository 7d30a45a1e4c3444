// Command clawminerd runs a single ClawMiner node: it loads configuration,
// boots the daemon (store, wallet, header sync, gossip, mining), starts the
// HTTP+SSE API, and blocks until an interrupt or terminate signal arrives.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/b0ase/clawminer/internal/daemon"
	"github.com/b0ase/clawminer/internal/httpapi"
	"github.com/b0ase/clawminer/pkg/config"
)

func main() {
	_ = godotenv.Load()

	var configPath string
	rootCmd := &cobra.Command{
		Use:   "clawminerd",
		Short: "ClawMiner proof-of-indexing mining daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a TOML, YAML, or JSON config file")

	if err := rootCmd.Execute(); err != nil {
		logrus.Errorf("clawminerd: %v", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := daemon.New(cfg)
	if err := d.Start(ctx); err != nil {
		return err
	}

	api := httpapi.New(cfg.API.Bind, cfg.API.Port, d)
	if err := api.Start(); err != nil {
		d.Stop()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logrus.Infof("clawminerd: received %s, shutting down", sig)

	cancel()
	api.Stop()
	d.Stop()
	return nil
}
