package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bosun-sh/bosun/internal/config"
)

// initCmd writes a default .bosun/config.yaml.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .bosun/config.yaml with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		projectRoot, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}

		path := filepath.Join(projectRoot, ".bosun", "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}

		if err := config.WriteConfig(projectRoot, config.DefaultConfig()); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}
