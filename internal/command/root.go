package command

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/sparringhq/sparring/internal/api"
	"github.com/sparringhq/sparring/internal/config"
	"github.com/sparringhq/sparring/internal/db"
)

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd creates the sparring root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sparring",
		Short:         "Debate-practice chat client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewLoginCmd())
	cmd.AddCommand(NewConversationsCmd())
	return cmd
}

func loadConfig() (*config.Config, error) {
	_ = godotenv.Load(".env")
	return config.Load()
}

func openClientDB(cfg *config.Config) (*db.ClientDB, error) {
	database, err := db.NewClientDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open client database: %w", err)
	}
	return database, nil
}

func newAPIClient(cfg *config.Config, database *db.ClientDB) (*api.Client, error) {
	token, err := database.GetCredential(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored credential: %w", err)
	}
	if token == "" {
		return nil, fmt.Errorf("no credential stored for %s; run `sparring login --token <token>`", cfg.ServerURL)
	}
	return api.New(cfg.APIBase(), token)
}
