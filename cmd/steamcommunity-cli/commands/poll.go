package commands

import (
	"context"
	"log/slog"
	"steamcommunity/cmd/steamcommunity-cli/globals"
	"steamcommunity/internal/confirmation"
	"steamcommunity/lib/telemetry"
	"time"

	"github.com/spf13/cobra"
)

var pollInterval *time.Duration
var pollAccept *bool

func init() {
	pollInterval = pollCmd.Flags().Duration("interval", 0, "How often to check for new confirmations, poll_interval_seconds from the config when unset.")
	pollAccept = pollCmd.Flags().Bool("accept", false, "Accept every new confirmation instead of only reporting it.")
	rootCmd.AddCommand(pollCmd)
}

var pollCmd = &cobra.Command{
	Use:   "poll [--interval <duration>] [--accept]",
	Short: "Watches for new confirmations until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		manager := setupManager(ctx)
		telemetry.InstrumentPerfStats(ctx, time.Minute)

		manager.Events.NewConfirmation.Subscribe(func(ev confirmation.NewConfirmationEvent) {
			slog.Info(
				"new confirmation",
				"id", ev.Confirmation.ID,
				"type", ev.Confirmation.Type.String(),
				"object", ev.Confirmation.Creator,
				"title", ev.Confirmation.Title,
			)
		})
		manager.Events.ConfirmationAccepted.Subscribe(func(ev confirmation.ConfirmationAcceptedEvent) {
			slog.Info("accepted confirmation", "id", ev.Confirmation.ID, "title", ev.Confirmation.Title)
		})

		value := globals.Get(ctx)
		cfg := value.Config
		secret := ""
		if *pollAccept {
			secret = cfg.IdentitySecret
		}
		interval := *pollInterval
		if interval <= 0 {
			interval = cfg.PollInterval()
		}
		manager.StartChecker(interval, secret)

		<-ctx.Done()
		slog.Info("stopping confirmation checker")
		manager.StopChecker()
		// ctx is already cancelled here
		finishResponses(context.Background(), value, manager)
	},
}
