package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/magpie/app/dto"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage the admin account",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the admin account; fails when one already exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")

		app, err := newApplication(configPath)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer app.Close()

		if username == "" {
			username = app.cfg.Admin.Username
		}
		if password == "" {
			password = app.cfg.Admin.Password
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		admin, err := app.adminFlow.CreateAdmin(ctx, &dto.CreateAdminRequest{
			Username: username,
			Password: password,
		}, businessflow.NewClientMetadata("", "magpie-cli"))
		if err != nil {
			return fmt.Errorf("failed to create admin: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Admin %q created (id %d)\n", admin.Username, admin.ID)
		return nil
	},
}

func init() {
	adminCreateCmd.Flags().String("username", "", "Admin username (default: admin.username from config)")
	adminCreateCmd.Flags().String("password", "", "Admin password (default: admin.password from config)")
	adminCmd.AddCommand(adminCreateCmd)
	rootCmd.AddCommand(adminCmd)
}
