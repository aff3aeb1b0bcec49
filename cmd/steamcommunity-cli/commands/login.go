package commands

import (
	"steamcommunity/cmd/steamcommunity-cli/globals"
	"steamcommunity/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Logs in with the configured credentials and stores the session.",
	Run: func(cmd *cobra.Command, args []string) {
		value := globals.Get(cmd.Context())
		client, err := newClient(value)
		if err != nil {
			serviceutil.Fatal("failed to create client", err)
		}
		err = login(cmd.Context(), value, client)
		if err != nil {
			serviceutil.Fatal("failed to login", err)
		}
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forgets the stored session of the configured account.",
	Run: func(cmd *cobra.Command, args []string) {
		value := globals.Get(cmd.Context())
		err := value.Store.Delete(cmd.Context(), value.Config.AccountName)
		if err != nil {
			serviceutil.Fatal("failed to delete session", err)
		}
	},
}
