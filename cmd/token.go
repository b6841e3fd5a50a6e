package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/magpie/app/dto"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue an API token and print it once",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		app, err := newApplication(configPath)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		resp, err := app.tokenFlow.Create(ctx, &dto.CreateAPITokenRequest{Name: name}, businessflow.SystemPrincipal(), businessflow.NewClientMetadata("", "magpie-cli"))
		if err != nil {
			return fmt.Errorf("failed to create token: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token %d (%s): %s\n%s\n", resp.ID, resp.Name, resp.Token, resp.Message)
		return nil
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke an API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetUint("id")

		app, err := newApplication(configPath)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := app.tokenFlow.Revoke(ctx, id, businessflow.SystemPrincipal(), businessflow.NewClientMetadata("", "magpie-cli")); err != nil {
			return fmt.Errorf("failed to revoke token %d: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token %d revoked\n", id)
		return nil
	},
}

func init() {
	tokenCreateCmd.Flags().String("name", "", "Token name")
	_ = tokenCreateCmd.MarkFlagRequired("name")
	tokenRevokeCmd.Flags().Uint("id", 0, "Token id")
	_ = tokenRevokeCmd.MarkFlagRequired("id")

	tokenCmd.AddCommand(tokenCreateCmd, tokenRevokeCmd)
	rootCmd.AddCommand(tokenCmd)
}
