package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dcwire/aircore/internal/prompt"
	"github.com/dcwire/aircore/pkg/api"
	"github.com/dcwire/aircore/pkg/config"
)

var passwdUsername string

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Set the API operator login",
	Long: `Set the username and password aircored's API accepts logins for.

Only a bcrypt hash of the password is written to the configuration file;
the plaintext is never persisted. Run this before setting api.enabled:
true in the configuration.`,
	RunE: runPasswd,
}

func init() {
	passwdCmd.Flags().StringVar(&passwdUsername, "username", "operator", "API operator username")
	rootCmd.AddCommand(passwdCmd)
}

func runPasswd(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var cfg *config.Config
	var err error
	if configFile == "" {
		configFile = config.GetDefaultConfigPath()
	}
	cfg, err = config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	password, err := prompt.PasswordWithConfirmation("Password", "Confirm password", api.MinPasswordLength)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	hash, err := api.HashPassword(password)
	if err != nil {
		return fmt.Errorf("invalid password: %w", err)
	}

	cfg.API.OperatorUsername = passwdUsername
	cfg.API.OperatorPasswordHash = hash

	if err := config.SaveConfig(cfg, configFile); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Operator login set for user %q in %s\n", passwdUsername, configFile)
	return nil
}
