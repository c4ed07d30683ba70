package command

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewLoginCmd creates the login command. Token acquisition happens
// elsewhere; this just stores the credential for the configured server.
func NewLoginCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the auth token for the configured server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return fmt.Errorf("--token is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			database, err := openClientDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.SetCredential(cfg.ServerURL, token); err != nil {
				return fmt.Errorf("failed to store credential: %w", err)
			}
			fmt.Printf("Credential stored for %s\n", cfg.ServerURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "auth token for the debate server")
	return cmd
}
