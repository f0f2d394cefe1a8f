// Package cli defines Cobra command definitions for the bosun CLI.
// This file contains the root command, version flag, and help output.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bosun-sh/bosun/internal/tui"
)

var (
	debug   bool
	version = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "bosun",
	Short: "Conversational assistant shell",
	Long: `Bosun is a conversational assistant shell. It holds a persistent
session across chat, image, and workspace modes; in workspace mode it
decomposes requests into plans, executes them step by step, and keeps
restorable save points along the way.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// When no subcommand is provided, launch the TUI if TTY, show help
		// otherwise.
		if !tui.IsTTY() {
			return cmd.Help()
		}

		projectRoot, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}

		a, err := buildApp(projectRoot, nil)
		if err != nil {
			return err
		}
		defer a.close()

		model := tui.New(a.ctrl)
		a.ctrl.SetNotifier(model.Notify)
		a.ctrl.Startup(cmd.Context())

		return tui.Run(model)
	},
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging to .bosun/bosun.log")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(savepointsCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(initCmd)
}
