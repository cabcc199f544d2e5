package main

import (
	"fmt"
	"os"

	"chauffe/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configInitForce bool

// runConfigInit writes the effective configuration (defaults, file, env and
// flag overrides) to --config so it can be edited.
func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}
	if err := cfg.Save(configPath); err != nil {
		return err
	}
	logging.Get(logging.CategoryBoot).Info("Config written", zap.String("path", configPath))
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
	return nil
}
