package commands

import (
	"context"
	"fmt"
	"log/slog"
	"steamcommunity/cmd/steamcommunity-cli/globals"
	"steamcommunity/internal/confirmation"
	"steamcommunity/lib/serviceutil"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	confirmationsCmd.AddCommand(listCmd)
	confirmationsCmd.AddCommand(acceptCmd)
	confirmationsCmd.AddCommand(cancelCmd)
	confirmationsCmd.AddCommand(acceptAllCmd)
	confirmationsCmd.AddCommand(acceptObjectCmd)
	confirmationsCmd.AddCommand(detailsCmd)
	rootCmd.AddCommand(confirmationsCmd)
}

var confirmationsCmd = &cobra.Command{
	Use:     "confirmations",
	Aliases: []string{"conf"},
	Short:   "Lists and responds to mobile confirmations.",
}

func setupManager(ctx context.Context) *confirmation.Manager {
	value := globals.Get(ctx)
	client, err := connect(ctx, value)
	if err != nil {
		serviceutil.Fatal("failed to connect", err)
	}
	manager, err := newManager(ctx, value, client)
	if err != nil {
		serviceutil.Fatal("failed to create confirmation manager", err)
	}
	return manager
}

// respondTo lists the pending confirmations and answers the ones in ids, or
// every one of them when ids is empty. The response key comes from the
// manager so it never shares a timestamp with an earlier response.
func respondTo(ctx context.Context, manager *confirmation.Manager, ids []string, accept bool) ([]confirmation.Confirmation, error) {
	key, err := manager.GetKey(ctx, confirmation.TagConf)
	if err != nil {
		return nil, fmt.Errorf("get confirmation key: %w", err)
	}
	pending, err := manager.List(ctx, key.Time, key.Key)
	if err != nil {
		return nil, fmt.Errorf("list confirmations: %w", err)
	}

	targets := pending
	if len(ids) > 0 {
		byID := make(map[string]confirmation.Confirmation, len(pending))
		for _, conf := range pending {
			byID[conf.ID] = conf
		}
		targets = make([]confirmation.Confirmation, 0, len(ids))
		for _, id := range ids {
			conf, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("confirmation %s is not pending", id)
			}
			targets = append(targets, conf)
		}
	}
	if len(targets) == 0 {
		return targets, nil
	}

	targetIDs := make([]string, len(targets))
	nonces := make([]string, len(targets))
	for i, conf := range targets {
		targetIDs[i] = conf.ID
		nonces[i] = conf.Key
	}

	tag := confirmation.TagCancel
	if accept {
		tag = confirmation.TagAllow
	}
	respondKey, err := manager.GetKey(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("get %s key: %w", tag, err)
	}
	err = manager.Respond(ctx, targetIDs, nonces, respondKey.Time, respondKey.Key, accept)
	if err != nil {
		return nil, err
	}
	return targets, nil
}

// finishResponses saves the manager's last key timestamp so the next
// invocation continues after it. Call it before exiting on an error too.
func finishResponses(ctx context.Context, value *globals.Value, manager *confirmation.Manager) {
	err := saveKeyTime(ctx, value, manager)
	if err != nil {
		slog.Warn("failed to save confirmation timestamp", "err", err)
	}
}

func listConfirmations(ctx context.Context, manager *confirmation.Manager) []confirmation.Confirmation {
	key, err := manager.GetKey(ctx, confirmation.TagConf)
	if err != nil {
		serviceutil.Fatal("failed to get confirmation key", err)
	}
	confirmations, err := manager.List(ctx, key.Time, key.Key)
	if err != nil {
		serviceutil.Fatal("failed to list confirmations", err)
	}
	return confirmations
}

func renderConfirmations(confirmations []confirmation.Confirmation) {
	t := newTable()
	t.AppendHeader(table.Row{"ID", "Type", "Object", "Title", "Receiving", "Time"})
	for _, conf := range confirmations {
		t.AppendRow(table.Row{
			conf.ID,
			conf.Type.String(),
			conf.Creator,
			conf.Title,
			conf.Receiving,
			conf.Time,
		})
	}
	t.Render()
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists pending confirmations.",
	Run: func(cmd *cobra.Command, args []string) {
		manager := setupManager(cmd.Context())
		confirmations := listConfirmations(cmd.Context(), manager)
		if globals.Get(cmd.Context()).Verbose {
			spew.Dump(confirmations)
		}
		renderConfirmations(confirmations)
	},
}

func respond(cmd *cobra.Command, ids []string, accept bool) {
	ctx := cmd.Context()
	manager := setupManager(ctx)

	answered, err := respondTo(ctx, manager, ids, accept)
	finishResponses(ctx, globals.Get(ctx), manager)
	if err != nil {
		serviceutil.Fatal("failed to respond to confirmations", err)
	}
	slog.Info("responded to confirmations", "count", len(answered), "accept", accept)
	renderConfirmations(answered)
}

var acceptCmd = &cobra.Command{
	Use:   "accept <id>...",
	Short: "Accepts the confirmations given as positional arguments.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		respond(cmd, args, true)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>...",
	Short: "Cancels the confirmations given as positional arguments.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		respond(cmd, args, false)
	},
}

var acceptAllCmd = &cobra.Command{
	Use:   "accept-all",
	Short: "Accepts every pending confirmation.",
	Run: func(cmd *cobra.Command, args []string) {
		respond(cmd, nil, true)
	},
}

var acceptObjectCmd = &cobra.Command{
	Use:   "accept-object <trade offer or listing id>",
	Short: "Accepts the confirmation created by a trade offer or market listing.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		objectID, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			serviceutil.Fatal("invalid object id", err)
		}
		ctx := cmd.Context()
		manager := setupManager(ctx)
		err = manager.AcceptForObject(ctx, globals.Get(ctx).Config.IdentitySecret, objectID)
		finishResponses(ctx, globals.Get(ctx), manager)
		if err != nil {
			serviceutil.Fatal("failed to accept confirmation", err)
		}
		slog.Info("accepted confirmation", "object", objectID)
	},
}

var detailsCmd = &cobra.Command{
	Use:   "details <id>",
	Short: "Prints the trade offer behind a confirmation.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		manager := setupManager(ctx)
		key, err := manager.GetKey(ctx, confirmation.TagDetails)
		if err != nil {
			serviceutil.Fatal("failed to get details key", err)
		}
		offerID, found, err := manager.ObjectID(ctx, args[0], key.Time, key.Key)
		if err != nil {
			serviceutil.Fatal("failed to load confirmation details", err)
		}
		if !found {
			fmt.Println("confirmation is not for a trade offer")
			return
		}
		fmt.Println(offerID)
	},
}
