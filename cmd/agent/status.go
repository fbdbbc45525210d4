package main

import (
	"encoding/json"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/meerabeer/nfo-agent/internal/buffer"
	"github.com/meerabeer/nfo-agent/internal/metrics_collectors"
	"github.com/meerabeer/nfo-agent/internal/models"
	"github.com/meerabeer/nfo-agent/internal/session"
	"github.com/meerabeer/nfo-agent/internal/state_managers"
)

type statusReport struct {
	Session  session.Context                      `json:"session"`
	Boot     models.BootMarker                    `json:"boot"`
	Buffer   buffer.Stats                         `json:"buffer"`
	Watchdog models.WatchdogState                 `json:"watchdog"`
	Device   map[string]metrics_collectors.Metric `json:"device"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the persisted session, buffer, watchdog and device state as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, fileClient, logger, err := loadConfig()
		if err != nil {
			return err
		}

		buf, err := buffer.Open(cmd.Context(), config.Buffer.Path, logger)
		if err != nil {
			return err
		}
		defer buf.Close()

		var report statusReport
		if report.Buffer, err = buf.Stats(cmd.Context()); err != nil {
			return err
		}

		sessionState := state_managers.NewSessionStateManager(config.Session.StateFile, fileClient, logger)
		if report.Session, err = sessionState.LoadSession(); err != nil {
			return err
		}
		if report.Boot, err = sessionState.LoadBootMarker(); err != nil {
			return err
		}
		watchdogState := state_managers.NewWatchdogStateManager(config.Watchdog.StateFile, fileClient, logger)
		if report.Watchdog, err = watchdogState.LoadState(); err != nil {
			return err
		}

		diagnostics := metrics_collectors.NewMetricsRegistry(
			&metrics_collectors.DiskMetricCollector{Path: filepath.Dir(config.Buffer.Path), Logger: logger},
			&metrics_collectors.MemoryMetricCollector{Logger: logger},
			&metrics_collectors.UptimeMetricCollector{},
		)
		report.Device = diagnostics.CollectAll(cmd.Context())

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
