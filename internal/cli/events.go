package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bosun-sh/bosun/internal/log"
)

var eventsTail int

// eventsCmd prints the session event log.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent session events",
	RunE: func(cmd *cobra.Command, args []string) error {
		projectRoot, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}

		eventLog, err := log.NewEventLog(projectRoot)
		if err != nil {
			return err
		}
		events, err := eventLog.ReadAll()
		if err != nil {
			return err
		}

		if eventsTail > 0 && len(events) > eventsTail {
			events = events[len(events)-eventsTail:]
		}
		if len(events) == 0 {
			fmt.Println("No events recorded.")
			return nil
		}
		for _, e := range events {
			line := fmt.Sprintf("%s  %s", e.Time.Local().Format("15:04:05"), e.Event)
			if e.Mode != "" {
				line += "  mode=" + e.Mode
			}
			if e.Steps > 0 {
				line += fmt.Sprintf("  steps=%d", e.Steps)
			}
			if e.Error != "" {
				line += "  error=" + e.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().IntVar(&eventsTail, "tail", 20, "Show only the last N events (0 for all)")
}
