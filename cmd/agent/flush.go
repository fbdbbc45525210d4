package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meerabeer/nfo-agent/internal/constants"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Deliver buffered heartbeats once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, _, logger, err := loadConfig()
		if err != nil {
			return err
		}

		buf, engine, err := openDelivery(cmd.Context(), config, logger)
		if err != nil {
			return err
		}
		defer buf.Close()

		sent := 0
		for round := 0; round < constants.DefaultBoundaryRounds; round++ {
			res, err := engine.Flush(cmd.Context(), config.Sync.BatchLimit)
			if err != nil {
				return err
			}
			sent += res.Sent
			if res.Pulled < config.Sync.BatchLimit {
				break
			}
		}

		pending, err := engine.Pending(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %d heartbeats, %d pending\n", sent, pending)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(flushCmd)
}
