package commands

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"feedbackapp/internal/config"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"github.com/spf13/cobra"
)

// UserCommands returns the user management commands
func UserCommands(userService *services.UserService, cfg *config.Config, logger *observability.Logger, databaseURL string) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long: `User management commands for the feedback application.

Available commands:
  create         - Create a new user account
  list           - List all users
  reset-password - Reset password for a specific user
  delete         - Delete a user account`,
	}

	// Add subcommands
	userCmd.AddCommand(createCmd(userService, cfg, logger))
	userCmd.AddCommand(listCmd(userService, logger, databaseURL))
	userCmd.AddCommand(resetPasswordCmd(userService, logger))
	userCmd.AddCommand(deleteCmd(userService, logger))

	return userCmd
}

// createCmd returns the create command
func createCmd(userService *services.UserService, cfg *config.Config, logger *observability.Logger) *cobra.Command {
	var email string
	var department string
	var isAdmin bool
	var password string

	cmd := &cobra.Command{
		Use:   "create [username]",
		Short: "Create a new user",
		Long:  `Create a new user account. The password is prompted for when not supplied via --password.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runCreateUser(userService, cfg, logger, &email, &department, &isAdmin, &password),
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address for the new user")
	cmd.Flags().StringVar(&department, "department", "", "Department the user belongs to")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "Grant administrator privileges")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")

	return cmd
}

// listCmd returns the list command
func listCmd(userService *services.UserService, logger *observability.Logger, databaseURL string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		Long:  `List all users in the database with their basic information.`,
		RunE:  runListUsers(userService, logger, databaseURL),
	}
}

// resetPasswordCmd returns the reset-password command
func resetPasswordCmd(userService *services.UserService, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password [username]",
		Short: "Reset password for a user",
		Long:  `Reset the password for a specific user. If username is not provided, you will be prompted for it.`,
		RunE:  runResetPassword(userService, logger),
	}
}

// deleteCmd returns the delete command
func deleteCmd(userService *services.UserService, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [username]",
		Short: "Delete a user",
		Long:  `Delete a user account by username. Submitted feedback is kept; the submitter fields on it are denormalized.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runDeleteUser(userService, logger),
	}
}

// runCreateUser returns a function that creates a user
func runCreateUser(userService *services.UserService, cfg *config.Config, logger *observability.Logger, email, department *string, isAdmin *bool, password *string) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()
		username := args[0]

		if *department == "" {
			return contextutils.ErrorWithContextf("--department is required")
		}
		canonical, ok := cfg.NormalizeDepartment(*department)
		if !ok {
			return contextutils.ErrorWithContextf("unknown department %q; configured departments: %v", *department, cfg.DepartmentNames())
		}

		pw := *password
		if pw == "" {
			fmt.Print("Enter password: ")
			passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
			if err != nil {
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password: %v", err)
			}
			pw = string(passwordBytes)
			fmt.Println()
		}
		if pw == "" {
			return contextutils.ErrorWithContextf("password cannot be empty")
		}

		user, err := userService.CreateUser(ctx, username, *email, pw, canonical, *isAdmin)
		if err != nil {
			logger.Error(ctx, "Failed to create user", err, map[string]interface{}{"username": username})
			return contextutils.WrapError(err, "failed to create user")
		}

		fmt.Printf("Created user '%s' (ID: %d, department: %s, admin: %t)\n", user.Username, user.ID, user.Department, user.IsAdmin)
		logger.Info(ctx, "User created", map[string]interface{}{"username": username, "user_id": user.ID})
		return nil
	}
}

// runListUsers returns a function that lists all users
func runListUsers(userService *services.UserService, logger *observability.Logger, databaseURL string) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		// Show diagnostic information
		logger.Info(ctx, "Admin command diagnostics", map[string]interface{}{"config_file": os.Getenv("FEEDBACK_CONFIG_FILE"), "database_url": maskDatabaseURL(databaseURL)})

		logger.Info(ctx, "Listing all users", map[string]interface{}{})

		users, err := userService.GetAllUsers(ctx)
		if err != nil {
			logger.Error(ctx, "Failed to get users", err, map[string]interface{}{})
			return contextutils.WrapError(err, "failed to get users")
		}

		if len(users) == 0 {
			logger.Info(ctx, "No users found in the database", nil)
			return nil
		}

		// Print header to stdout (user-facing table)
		fmt.Printf("%-5s %-20s %-30s %-20s %-7s %-10s\n", "ID", "Username", "Email", "Department", "Admin", "Created")

		// Print each user
		for _, user := range users {
			email := "N/A"
			if user.Email.Valid {
				email = user.Email.String
			}

			admin := "No"
			if user.IsAdmin {
				admin = "Yes"
			}

			fmt.Printf("%-5d %-20s %-30s %-20s %-7s %-10s\n",
				user.ID,
				user.Username,
				email,
				user.Department,
				admin,
				user.CreatedAt.Format("2006-01-02"),
			)
		}

		logger.Info(ctx, "Listed users", map[string]interface{}{"total": len(users)})
		return nil
	}
}

// runResetPassword returns a function that resets a user's password
func runResetPassword(userService *services.UserService, logger *observability.Logger) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()

		var username string
		var newPassword string

		// Get username from args or prompt
		if len(args) > 0 {
			username = args[0]
		} else {
			fmt.Print("Enter username: ")
			if _, err := fmt.Scanln(&username); err != nil {
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read username: %v", err)
			}
		}

		if username == "" {
			return contextutils.ErrorWithContextf("username is required")
		}

		// Prompt for password securely
		fmt.Print("Enter new password: ")
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password: %v", err)
		}
		newPassword = string(passwordBytes)
		fmt.Println() // New line after password input

		if newPassword == "" {
			return contextutils.ErrorWithContextf("password cannot be empty")
		}

		// Confirm password
		fmt.Print("Confirm new password: ")
		confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password confirmation: %v", err)
		}
		confirmPassword := string(confirmBytes)
		fmt.Println() // New line after password input

		if newPassword != confirmPassword {
			return contextutils.ErrorWithContextf("passwords do not match")
		}

		logger.Info(ctx, "Resetting password for user", map[string]interface{}{
			"username": username,
		})

		// Get user by username
		user, err := userService.GetUserByUsername(ctx, username)
		if err != nil {
			logger.Error(ctx, "Failed to get user", err, map[string]interface{}{"username": username})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to get user '%s': %v", username, err)
		}

		if user == nil {
			logger.Error(ctx, "User not found", nil, map[string]interface{}{"username": username})
			return contextutils.ErrorWithContextf("user '%s' not found", username)
		}

		// Update the password
		err = userService.UpdateUserPassword(ctx, user.ID, newPassword)
		if err != nil {
			logger.Error(ctx, "Failed to update password", err, map[string]interface{}{
				"username": username,
				"user_id":  user.ID,
			})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to update password for user '%s': %v", username, err)
		}

		fmt.Printf("Password successfully reset for user '%s' (ID: %d)\n", username, user.ID)
		logger.Info(ctx, "Password reset successful", map[string]interface{}{
			"username": username,
			"user_id":  user.ID,
		})

		return nil
	}
}

// runDeleteUser returns a function that deletes a user by username
func runDeleteUser(userService *services.UserService, logger *observability.Logger) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()
		username := args[0]

		user, err := userService.GetUserByUsername(ctx, username)
		if err != nil {
			logger.Error(ctx, "Failed to get user", err, map[string]interface{}{"username": username})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to get user '%s': %v", username, err)
		}
		if user == nil {
			return contextutils.ErrorWithContextf("user '%s' not found", username)
		}

		if err := userService.DeleteUser(ctx, user.ID); err != nil {
			logger.Error(ctx, "Failed to delete user", err, map[string]interface{}{"username": username, "user_id": user.ID})
			return contextutils.WrapError(err, "failed to delete user")
		}

		fmt.Printf("Deleted user '%s' (ID: %d)\n", username, user.ID)
		logger.Info(ctx, "User deleted", map[string]interface{}{"username": username, "user_id": user.ID})
		return nil
	}
}
