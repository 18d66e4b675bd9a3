package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/go-ble/llcpengine/internal/config"
)

// configCmd is the config subcommand group.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Inspect and validate the llcpctl configuration.

Subcommands:
  validate  Validate a configuration file
  show      Display the effective configuration`,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load configuration from --config (or the default search path),
apply defaults, and run struct-tag validation (pool capacities >= 1,
logging level/format enums, ...).

Exits non-zero and prints the validation error if the configuration is
invalid.`,
	RunE: runConfigValidate,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration as YAML",
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(validateCmd)
	configCmd.AddCommand(showCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "configuration valid (context=%d tx=%d notification=%d)\n",
		cfg.Pools.ContextCapacity, cfg.Pools.TXCapacity, cfg.Pools.NotificationCapacity)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(cfg)
}
