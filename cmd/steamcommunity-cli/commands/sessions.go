package commands

import (
	"os"
	"steamcommunity/cmd/steamcommunity-cli/globals"
	"steamcommunity/lib/serviceutil"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Lists the sessions stored in the session database.",
	Run: func(cmd *cobra.Command, args []string) {
		value := globals.Get(cmd.Context())
		records, err := value.Store.List(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to list sessions", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Account", "SteamID", "Cookies", "Steam Guard", "Updated"})
		for _, record := range records {
			t.AppendRow(table.Row{
				record.AccountName,
				record.Session.SteamID.String(),
				len(record.Session.Cookies),
				record.Session.SteamGuard != "",
				record.UpdatedAt.Format(time.ANSIC),
			})
		}
		t.Render()
	},
}
