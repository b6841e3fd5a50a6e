package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/magpie/app/dto"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/amirphl/magpie/models"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the schema and seed default settings and categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApplication(configPath)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if err := app.migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migration complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

// migrate runs AutoMigrate, seeds missing settings and, on an empty table, the configured categories
func (a *Application) migrate(ctx context.Context) error {
	if err := a.db.WithContext(ctx).AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	if err := a.settingsFlow.SeedDefaults(ctx, defaultSettings(a.cfg)); err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}

	count, err := a.categoryRepo.Count(ctx, models.CategoryFilter{})
	if err != nil {
		return fmt.Errorf("failed to count categories: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, name := range a.cfg.Site.Categories {
		_, err := a.categoryFlow.Create(ctx, &dto.CreateCategoryRequest{Name: name}, businessflow.SystemPrincipal(), businessflow.NewClientMetadata("", "magpie-cli"))
		if err != nil && !businessflow.IsCategoryExists(err) {
			return fmt.Errorf("failed to seed category %q: %w", name, err)
		}
	}
	a.log.WithField("categories", len(a.cfg.Site.Categories)).Info("Default categories seeded")
	return nil
}
