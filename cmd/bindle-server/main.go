package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bindlekit/bindle/internal/config"
	frontend "github.com/bindlekit/bindle/internal/frontend/http"
	"github.com/bindlekit/bindle/pkg/bindle"
	"github.com/bindlekit/bindle/pkg/core"
)

func main() {
	root := &cobra.Command{
		Use:   "bindle-server",
		Short: "A content-addressable bindle registry server",
	}
	root.AddCommand(serveCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the registry server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := bindle.Open(ctx, cfg.RegistryConfig())
	if err != nil {
		return fmt.Errorf("opening registry: %w", err)
	}
	defer reg.Close()

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: frontend.New(reg, core.LimitsConfig{}, logger).Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("bindle registry listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("dir", cfg.Storage.Dir))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
