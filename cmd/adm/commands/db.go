// Package commands provides CLI commands for the admin tool
package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"feedbackapp/internal/config"
	"feedbackapp/internal/database"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"github.com/spf13/cobra"
)

// DatabaseCommands returns the database management commands
func DatabaseCommands(userService *services.UserService, cfg *config.Config, logger *observability.Logger, db *sql.DB, dbManager *database.Manager) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the feedback application.

Available commands:
  stats     - Show database statistics
  migrate   - Apply pending schema migrations
  reset     - Drop all application data (destructive)
  seed      - Insert a starter question template per department
  cleanup   - Run database cleanup operations`,
	}

	// Add subcommands
	dbCmd.AddCommand(statsCmd(userService, logger, db))
	dbCmd.AddCommand(migrateCmd(logger, db, dbManager))
	dbCmd.AddCommand(resetCmd(userService, logger))
	dbCmd.AddCommand(seedCmd(cfg, logger, db))
	dbCmd.AddCommand(cleanupCmd(logger, db))

	return dbCmd
}

// statsCmd returns the stats command
func statsCmd(userService *services.UserService, logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Long:  `Show database statistics including user, period and feedback counts.`,
		RunE:  runStats(userService, logger, db),
	}
}

// migrateCmd returns the migrate command
func migrateCmd(logger *observability.Logger, db *sql.DB, dbManager *database.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long:  `Apply pending golang-migrate migrations and the idempotent application schema.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()
			logger.Info(ctx, "Running migrations", map[string]interface{}{"database": getDatabaseInfo(db)})
			if err := dbManager.RunMigrations(db); err != nil {
				logger.Error(ctx, "Migrations failed", err, map[string]interface{}{})
				return contextutils.WrapError(err, "migrations failed")
			}
			fmt.Println("Migrations applied")
			return nil
		},
	}
}

// resetCmd returns the reset command
func resetCmd(userService *services.UserService, logger *observability.Logger) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop all application data",
		Long:  `Delete all users, templates, periods, feedback and worker bookkeeping. Requires --yes.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()
			if !confirm {
				return contextutils.ErrorWithContextf("refusing to reset without --yes")
			}
			logger.Info(ctx, "Resetting database", map[string]interface{}{})
			if err := userService.ResetDatabase(ctx); err != nil {
				logger.Error(ctx, "Database reset failed", err, map[string]interface{}{})
				return contextutils.WrapError(err, "database reset failed")
			}
			fmt.Println("Database reset complete")
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "yes", false, "Confirm the destructive reset")

	return cmd
}

// seedCmd returns the seed command
func seedCmd(cfg *config.Config, logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert starter question templates",
		Long:  `Insert a default question template for every configured department that has none yet.`,
		RunE:  runSeed(cfg, logger, db),
	}
}

// defaultSeedQuestions is the starter question set used by db seed
func defaultSeedQuestions() models.QuestionList {
	return models.QuestionList{
		{ID: "q1", Text: "How would you rate the overall collaboration with this department?", Type: models.QuestionTypeRating},
		{ID: "q2", Text: "How responsive is this department to requests?", Type: models.QuestionTypeRating},
		{ID: "q3", Text: "How clear is this department's communication?", Type: models.QuestionTypeRating},
	}
}

// runSeed returns a function that inserts starter templates
func runSeed(cfg *config.Config, logger *observability.Logger, db *sql.DB) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		templateService := services.NewTemplateServiceWithLogger(db, cfg, logger)
		questions := defaultSeedQuestions()

		seeded := 0
		for _, dept := range cfg.Departments {
			existing, err := templateService.GetAllTemplates(ctx, dept.Name)
			if err != nil {
				logger.Error(ctx, "Failed to list templates", err, map[string]interface{}{"department": dept.Name})
				return contextutils.WrapError(err, "failed to list templates")
			}
			if len(existing) > 0 {
				continue
			}

			if _, err := templateService.CreateTemplate(ctx, dept.Name, "Default questionnaire", questions); err != nil {
				logger.Error(ctx, "Failed to seed template", err, map[string]interface{}{"department": dept.Name})
				return contextutils.WrapError(err, "failed to seed template")
			}
			seeded++
			fmt.Printf("Seeded default questionnaire for %s\n", dept.Name)
		}

		if seeded == 0 {
			fmt.Println("Nothing to seed - every department already has a template")
		}
		logger.Info(ctx, "Seed complete", map[string]interface{}{"templates_created": seeded})
		return nil
	}
}

// cleanupCmd returns the cleanup command
func cleanupCmd(logger *observability.Logger, db *sql.DB) *cobra.Command {
	var statsOnly bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run database cleanup operations",
		Long: `Run database cleanup operations to remove old data.

This command will:
- Remove sent notifications whose user or period no longer exists
- Remove worker status rows without a recent heartbeat

Use --stats flag to see what would be cleaned up without actually performing the cleanup.`,
		RunE: runCleanup(logger, &statsOnly, db),
	}

	// Add flags
	cmd.Flags().BoolVar(&statsOnly, "stats", false, "Only show cleanup statistics, don't perform cleanup")

	return cmd
}

// runStats returns a function that shows database statistics
func runStats(userService *services.UserService, logger *observability.Logger, db *sql.DB) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		// Log diagnostic information
		logger.Info(ctx, "Diagnostic info", map[string]interface{}{"config_file": os.Getenv("FEEDBACK_CONFIG_FILE"), "database": getDatabaseInfo(db)})

		users, err := userService.GetAllUsers(ctx)
		if err != nil {
			logger.Error(ctx, "Failed to get user statistics", err, map[string]interface{}{})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to get user statistics: %v", err)
		}

		var periods, feedback int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feedback_periods").Scan(&periods); err != nil {
			return contextutils.WrapError(err, "failed to count periods")
		}
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feedback").Scan(&feedback); err != nil {
			return contextutils.WrapError(err, "failed to count feedback")
		}

		fmt.Printf("Users:    %d\nPeriods:  %d\nFeedback: %d\n", len(users), periods, feedback)
		logger.Info(ctx, "Database statistics", map[string]interface{}{"total_users": len(users), "total_periods": periods, "total_feedback": feedback})

		return nil
	}
}

// runCleanup returns a function that runs database cleanup
func runCleanup(logger *observability.Logger, statsOnly *bool, db *sql.DB) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		// Log diagnostic information
		logger.Info(ctx, "Diagnostic info", map[string]interface{}{"config_file": os.Getenv("FEEDBACK_CONFIG_FILE"), "database": getDatabaseInfo(db)})

		logger.Info(ctx, "Running database cleanup", map[string]interface{}{"stats_only": *statsOnly})

		// Use the database connection passed as parameter
		if db == nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "database connection not available")
		}

		// Initialize cleanup service
		cleanupService := services.NewCleanupServiceWithLogger(db, logger)

		if *statsOnly {
			// Show cleanup statistics only
			stats, err := cleanupService.GetCleanupStats(ctx)
			if err != nil {
				logger.Error(ctx, "Failed to get cleanup stats", err, map[string]interface{}{"stats_only": true})
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to get cleanup stats: %v", err)
			}

			logger.Info(ctx, "Database cleanup statistics", map[string]interface{}{"orphaned_notifications": stats["orphaned_notifications"], "stale_worker_status": stats["stale_worker_status"]})

			total := stats["orphaned_notifications"] + stats["stale_worker_status"]
			if total == 0 {
				logger.Info(ctx, "No cleanup needed - database is clean", map[string]interface{}{"total": total})
			} else {
				logger.Info(ctx, "Cleanup would remove items", map[string]interface{}{"total": total})
			}
			return nil
		}

		// Run full cleanup
		logger.Info(ctx, "Starting database cleanup", map[string]interface{}{"service": "cleanup"})

		if err := cleanupService.RunFullCleanup(ctx); err != nil {
			logger.Error(ctx, "Cleanup failed", err, map[string]interface{}{"service": "cleanup"})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "cleanup failed: %v", err)
		}

		logger.Info(ctx, "Database cleanup completed successfully", map[string]interface{}{"service": "cleanup"})
		return nil
	}
}
