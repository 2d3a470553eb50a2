package cmd

import (
	"fmt"

	"github.com/brensch/sitereports/internal/history"

	"github.com/spf13/cobra"
)

// historyCmd groups commands editing the download history.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List or edit the set of already downloaded bundle names",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every bundle name recorded as downloaded",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := history.NewStore(getConfig().Paths.HistoryFile, getLogger())
		set := store.Load()
		for _, id := range set.IDs() {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		getLogger().Debug("Download history listed", "path", store.Path(), "count", set.Len())
		return nil
	},
}

var historyForgetCmd = &cobra.Command{
	Use:   "forget NAME...",
	Short: "Remove bundle names so the next run downloads them again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		store := history.NewStore(getConfig().Paths.HistoryFile, logger)
		set := store.Load()
		removed := 0
		for _, id := range args {
			if set.Remove(id) {
				removed++
				continue
			}
			logger.Warn("Name not present in download history.", "name", id)
		}
		if removed == 0 {
			return nil
		}
		if err := store.Persist(set); err != nil {
			return fmt.Errorf("persist download history: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "forgot %d of %d names\n", removed, len(args))
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyForgetCmd)
}
