package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bosun-sh/bosun/internal/session"
	"github.com/bosun-sh/bosun/internal/shell"
)

var askMode string

// askCmd runs a single exchange without the TUI. The session persists, so
// repeated invocations continue the same conversation.
var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send one message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectRoot, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}

		notify := func(n shell.Notification) {
			fmt.Fprintf(os.Stderr, "%s: %s\n", n.Level, n.Text)
		}
		a, err := buildApp(projectRoot, notify)
		if err != nil {
			return err
		}
		defer a.close()

		mode := session.OperatingMode(askMode)
		if !mode.Valid() {
			return fmt.Errorf("unknown mode %q", askMode)
		}

		a.ctrl.Startup(cmd.Context())

		text := strings.Join(args, " ")
		if err := a.ctrl.SendMessage(cmd.Context(), text, mode, false); err != nil {
			return err
		}

		msgs := a.ctrl.Store().Messages()
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == session.RoleAssistant {
				fmt.Println(msgs[i].Content)
				break
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askMode, "mode", string(session.ModeChat),
		"Operating mode: chat, image-creator, or workspace")
}
