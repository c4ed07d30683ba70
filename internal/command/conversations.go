package command

import (
	"context"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/sparringhq/sparring/internal/api"
)

// NewConversationsCmd creates the conversations command group for
// direct REST access from the terminal.
func NewConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"debates"},
		Short:   "List, create and delete debates",
	}
	cmd.AddCommand(newConversationsListCmd())
	cmd.AddCommand(newConversationsCreateCmd())
	cmd.AddCommand(newConversationsDeleteCmd())
	return cmd
}

func newConversationsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List debates, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, cleanup, err := commandAPIClient()
			if err != nil {
				return err
			}
			defer cleanup()

			convs, err := apiClient.ListDebates(context.Background())
			if err != nil {
				return err
			}
			sort.SliceStable(convs, func(i, j int) bool {
				return convs[i].LastActivityAt.After(convs[j].LastActivityAt)
			})
			for _, c := range convs {
				fmt.Printf("%s  %-30s  %-8s  %s\n", c.ID, c.Title, c.Stance, humanize.Time(c.LastActivityAt))
			}
			return nil
		},
	}
}

func newConversationsCreateCmd() *cobra.Command {
	var topic, stance string
	var mood []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a debate",
		RunE: func(cmd *cobra.Command, args []string) error {
			if topic == "" {
				return fmt.Errorf("--topic is required")
			}
			apiClient, cleanup, err := commandAPIClient()
			if err != nil {
				return err
			}
			defer cleanup()

			conv, err := apiClient.CreateDebate(context.Background(), api.CreateParams{
				Mood:          mood,
				Topic:         topic,
				AIInclination: stance,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created %s: %s\n", conv.ID, conv.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "debate topic")
	cmd.Flags().StringVar(&stance, "stance", "against", "AI inclination: for, against or neutral")
	cmd.Flags().StringSliceVar(&mood, "mood", nil, "mood tags")
	return cmd
}

func newConversationsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a debate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, cleanup, err := commandAPIClient()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := apiClient.DeleteDebate(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func commandAPIClient() (*api.Client, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	database, err := openClientDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	apiClient, err := newAPIClient(cfg, database)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return apiClient, func() { database.Close() }, nil
}
