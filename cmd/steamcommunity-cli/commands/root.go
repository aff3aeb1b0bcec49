package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"steamcommunity/cmd/steamcommunity-cli/globals"
	"steamcommunity/internal/sessiondb"
	"steamcommunity/lib/configutil"
	"steamcommunity/lib/telemetry"

	"github.com/spf13/cobra"
)

var configPath *string
var verbose *bool
var dumpDir *string

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "steamcommunity.json5", "The account configuration to use.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output and dump responses.")
	dumpDir = rootCmd.PersistentFlags().String("dump", "", "A directory to write every request and response to.")
}

var rootCmd = &cobra.Command{
	Use:   "steamcommunity-cli",
	Short: "steamcommunity-cli logs into the steam community and manages mobile confirmations.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(*verbose)

		cfg, err := configutil.Load(*configPath, globals.DefaultConfig())
		if err != nil {
			return fmt.Errorf("read config %s: %w", *configPath, err)
		}

		db, err := sessiondb.OpenDB(cfg.SessionDB)
		if err != nil {
			return err
		}

		tel, err := telemetry.SetupFromEnv(cmd.Context(), "steamcommunity-cli", map[string]string{
			"steam.account": cfg.AccountName,
		})
		if err != nil {
			slog.Debug("telemetry export disabled", "err", err)
		}

		cmd.SetContext(globals.Set(cmd.Context(), &globals.Value{
			Config:    cfg,
			Verbose:   *verbose,
			DumpDir:   *dumpDir,
			DB:        db,
			Store:     sessiondb.NewStore(db, nil),
			Telemetry: tel,
		}))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		value := globals.Get(cmd.Context())
		err := value.Telemetry.Shutdown(context.Background())
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
		value.DB.Close()
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
