package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/meerabeer/nfo-agent/internal/utils"
	"github.com/meerabeer/nfo-agent/pkg/file"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "nfo-agent",
	Short: "Field worker heartbeat agent",
	Long: `nfo-agent samples the field worker's position while on shift, buffers
heartbeats locally and delivers them to the operations dashboard.

Heartbeats survive restarts, reboots and connectivity loss; a watchdog flags
workers whose device has gone silent.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the agent configuration")
}

// loadConfig reads the configuration and builds the root logger.
func loadConfig() (*utils.Config, file.FileOperations, zerolog.Logger, error) {
	fileClient := file.NewFileService()
	config, err := utils.LoadConfig(configPath, fileClient)
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}
	logger, err := utils.NewLogger(config)
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}
	return config, fileClient, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
