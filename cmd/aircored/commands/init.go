package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dcwire/aircore/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample aircore configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/aircore/config.yaml. Use --config to specify a custom path.

Examples:
  # Initialize with default location
  aircored init

  # Initialize with custom path
  aircored init --config /etc/aircore/config.yaml

  # Force overwrite existing config
  aircored init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error
	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your identity and shares")
	fmt.Println("  2. Start the host with: aircored start")
	fmt.Printf("  3. Or specify custom config: aircored start --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  A random API session-signing secret was generated for you.")
	fmt.Printf("  Run \"aircored passwd --config %s\" to set an operator login, then set api.enabled: true.\n", configPath)

	return nil
}
