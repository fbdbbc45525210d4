package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, fileClient, logger, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newAgent(cmd.Context(), config, fileClient, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to wire agent")
			return err
		}
		defer a.close()

		if err := a.registry.StartServices(); err != nil {
			logger.Error().Err(err).Msg("Failed to start services")
			return err
		}
		logger.Info().Msg("All services started successfully")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		logger.Info().Msg("Shutting down gracefully...")
		return a.registry.StopServices()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
