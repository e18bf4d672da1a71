package cmd

import (
	"fmt"

	"tftpwatch/bootstrap"
	"tftpwatch/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	var showSecrets bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the configuration after defaults, file and environment are merged",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if !showSecrets {
				cfg = redactSecrets(*cfg)
			}

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print passwords and tokens in clear text")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and resolve secrets, reporting any error",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := bootstrap.InitConfig(configFile, cliLogger()); err != nil {
				return err
			}
			successColor.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	}

	configCmd.AddCommand(showCmd, validateCmd)
	return configCmd
}

// redactSecrets returns a copy of cfg with credentials masked
func redactSecrets(cfg config.Config) *config.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&cfg.Email.SenderPassword)
	mask(&cfg.Redis.Password)
	mask(&cfg.Secrets.Vault.Token)
	mask(&cfg.Secrets.AWS.AccessKey)
	mask(&cfg.Secrets.AWS.SecretKey)
	return &cfg
}
