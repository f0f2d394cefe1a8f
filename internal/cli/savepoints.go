package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// savepointsCmd lists and restores session save points.
var savepointsCmd = &cobra.Command{
	Use:   "savepoints",
	Short: "List session save points",
	RunE: func(cmd *cobra.Command, args []string) error {
		projectRoot, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}

		a, err := buildApp(projectRoot, nil)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.ctrl.Store().LoadPersisted(cmd.Context()); err != nil {
			return err
		}

		sps := a.ctrl.Store().SavePoints()
		if len(sps) == 0 {
			fmt.Println("No save points yet.")
			return nil
		}
		for _, sp := range sps {
			fmt.Printf("%s  %s  %d msgs  %d tokens  %s\n",
				shortID(sp.ID),
				sp.Timestamp.Local().Format("2006-01-02 15:04:05"),
				sp.MessagesCount,
				sp.ContextUsed,
				sp.Description)
		}
		return nil
	},
}

// shortID truncates an ID for display. Persisted IDs come from arbitrary
// JSON, so no length is guaranteed.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// restoreCmd restores a save point by ID prefix.
var restoreCmd = &cobra.Command{
	Use:   "restore <id-prefix>",
	Short: "Restore a save point by ID prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectRoot, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}

		a, err := buildApp(projectRoot, nil)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.ctrl.Store().LoadPersisted(cmd.Context()); err != nil {
			return err
		}

		prefix := args[0]
		for _, sp := range a.ctrl.Store().SavePoints() {
			if strings.HasPrefix(sp.ID, prefix) {
				restored, err := a.ctrl.RestoreSavePoint(sp)
				if err != nil {
					return err
				}
				if !restored {
					return fmt.Errorf("save point %s has no restorable data", sp.ID)
				}
				fmt.Printf("Restored save point %s (%d messages).\n", shortID(sp.ID), sp.MessagesCount)
				return nil
			}
		}
		return fmt.Errorf("no save point matching %q", prefix)
	},
}

func init() {
	savepointsCmd.AddCommand(restoreCmd)
}
