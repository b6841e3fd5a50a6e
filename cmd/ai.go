package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var aiCmd = &cobra.Command{
	Use:   "ai",
	Short: "AI analyzer utilities",
}

var aiTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Check connectivity to the configured AI provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApplication(configPath)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := app.settingsFlow.Apply(ctx); err != nil {
			return err
		}
		resp, err := app.settingsFlow.TestAI(ctx)
		if err != nil {
			return err
		}
		if !resp.OK {
			return fmt.Errorf("ai provider %q (model %q) is not reachable", resp.Provider, resp.Model)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "AI provider %q (model %q) OK\n", resp.Provider, resp.Model)
		return nil
	},
}

func init() {
	aiCmd.AddCommand(aiTestCmd)
	rootCmd.AddCommand(aiCmd)
}
