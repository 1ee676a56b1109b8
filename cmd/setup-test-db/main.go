// Package main provides a utility to set up the test database with initial data.
// It loads users, question templates, feedback periods and submitted feedback
// from YAML fixture files and inserts them through the regular services, so
// fixtures go through the same validation as real traffic.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"feedbackapp/internal/config"
	"feedbackapp/internal/database"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"gopkg.in/yaml.v3"
)

// TestUser represents a user in the test data files
type TestUser struct {
	Username   string `yaml:"username"`
	Email      string `yaml:"email"`
	Password   string `yaml:"password"` // Special field for password creation
	Department string `yaml:"department"`
	IsAdmin    bool   `yaml:"is_admin"`
}

// TestUsers represents a collection of test users
type TestUsers struct {
	Users []TestUser `yaml:"users"`
}

// TestTemplate represents a question template fixture
type TestTemplate struct {
	Department string              `yaml:"department"`
	Name       string              `yaml:"name"`
	Questions  models.QuestionList `yaml:"questions"`
}

// TestPeriod represents a feedback period fixture. Dates are day offsets
// relative to "now" so fixtures never expire.
type TestPeriod struct {
	Department    string              `yaml:"department"`
	StartDaysFrom int                 `yaml:"start_days_from_now"`
	EndDaysFrom   int                 `yaml:"end_days_from_now"`
	Questions     models.QuestionList `yaml:"questions"`
	Active        bool                `yaml:"active"`
}

// TestFeedback represents a submitted feedback fixture
type TestFeedback struct {
	Username          string `yaml:"username"`
	PeriodIndex       int    `yaml:"period_index"` // index into the periods fixture list
	AdditionalComment string `yaml:"additional_comment"`
	Answers           []struct {
		QuestionID string `yaml:"question_id"`
		Rating     int    `yaml:"rating"`
		Comment    string `yaml:"comment"`
	} `yaml:"answers"`
}

// TestFixtures bundles every fixture file
type TestFixtures struct {
	users     TestUsers
	templates []TestTemplate
	periods   []TestPeriod
	feedback  []TestFeedback
}

func main() {
	dataDir := flag.String("data-dir", "testdata/fixtures", "Directory containing YAML fixture files")
	clear := flag.Bool("clear", true, "Clear existing data before loading fixtures")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Keep the fixture loader quiet; it runs inside test pipelines
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	_, _, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "setup-test-db")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}

	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDBWithConfig(cfg.Database)
	if err != nil {
		logger.Error(ctx, "Failed to connect to database", err, map[string]interface{}{"db_url": cfg.Database.URL})
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Warning: failed to close database connection", map[string]interface{}{"error": err.Error()})
		}
	}()

	userService := services.NewUserServiceWithLogger(db, cfg, logger)
	templateService := services.NewTemplateServiceWithLogger(db, cfg, logger)
	periodService := services.NewPeriodServiceWithLogger(db, cfg, templateService, logger)
	feedbackService := services.NewFeedbackServiceWithLogger(db, cfg, periodService, logger)

	if *clear {
		fmt.Println("Clearing existing data...")
		if err := userService.ResetDatabase(ctx); err != nil {
			logger.Error(ctx, "Failed to clear database", err, nil)
			os.Exit(1)
		}
	}

	fixtures, err := loadFixtures(*dataDir)
	if err != nil {
		logger.Error(ctx, "Failed to load fixtures", err, map[string]interface{}{"data_dir": *dataDir})
		os.Exit(1)
	}

	// Users first; feedback fixtures reference them by username
	usersByName := make(map[string]*models.User, len(fixtures.users.Users))
	for _, tu := range fixtures.users.Users {
		user, err := userService.CreateUser(ctx, tu.Username, tu.Email, tu.Password, tu.Department, tu.IsAdmin)
		if err != nil {
			logger.Error(ctx, "Failed to create test user", err, map[string]interface{}{"username": tu.Username})
			os.Exit(1)
		}
		usersByName[tu.Username] = user
	}
	fmt.Printf("Created %d users\n", len(usersByName))

	for _, tt := range fixtures.templates {
		if _, err := templateService.CreateTemplate(ctx, tt.Department, tt.Name, tt.Questions); err != nil {
			logger.Error(ctx, "Failed to create test template", err, map[string]interface{}{"department": tt.Department})
			os.Exit(1)
		}
	}
	fmt.Printf("Created %d question templates\n", len(fixtures.templates))

	now := time.Now().UTC()
	periodIDs := make([]int, 0, len(fixtures.periods))
	for _, tp := range fixtures.periods {
		start := now.AddDate(0, 0, tp.StartDaysFrom)
		end := now.AddDate(0, 0, tp.EndDaysFrom)
		period, err := periodService.CreatePeriod(ctx, tp.Department, start, end, tp.Questions, nil, tp.Active)
		if err != nil {
			logger.Error(ctx, "Failed to create test period", err, map[string]interface{}{"department": tp.Department})
			os.Exit(1)
		}
		periodIDs = append(periodIDs, period.ID)
	}
	fmt.Printf("Created %d feedback periods\n", len(periodIDs))

	submitted := 0
	for _, tf := range fixtures.feedback {
		user, ok := usersByName[tf.Username]
		if !ok {
			logger.Error(ctx, "Feedback fixture references unknown user", nil, map[string]interface{}{"username": tf.Username})
			os.Exit(1)
		}
		if tf.PeriodIndex < 0 || tf.PeriodIndex >= len(periodIDs) {
			logger.Error(ctx, "Feedback fixture references unknown period", nil, map[string]interface{}{"period_index": tf.PeriodIndex})
			os.Exit(1)
		}

		answers := make([]services.AnswerSubmission, 0, len(tf.Answers))
		for _, a := range tf.Answers {
			answers = append(answers, services.AnswerSubmission{
				QuestionID: a.QuestionID,
				Rating:     a.Rating,
				Comment:    a.Comment,
			})
		}

		if _, err := feedbackService.SubmitFeedback(ctx, user, periodIDs[tf.PeriodIndex], answers, tf.AdditionalComment); err != nil {
			logger.Error(ctx, "Failed to submit test feedback", err, map[string]interface{}{"username": tf.Username})
			os.Exit(1)
		}
		submitted++
	}
	fmt.Printf("Submitted %d feedback records\n", submitted)

	fmt.Println("Test database setup complete")
}

// loadFixtures reads every fixture file from the data directory. Missing
// files are fine; the corresponding section is just empty.
func loadFixtures(dir string) (*TestFixtures, error) {
	fixtures := &TestFixtures{}

	if err := loadYAML(filepath.Join(dir, "users.yaml"), &fixtures.users); err != nil {
		return nil, contextutils.WrapError(err, "failed to load users fixture")
	}

	var templates struct {
		Templates []TestTemplate `yaml:"templates"`
	}
	if err := loadYAML(filepath.Join(dir, "templates.yaml"), &templates); err != nil {
		return nil, contextutils.WrapError(err, "failed to load templates fixture")
	}
	fixtures.templates = templates.Templates

	var periods struct {
		Periods []TestPeriod `yaml:"periods"`
	}
	if err := loadYAML(filepath.Join(dir, "periods.yaml"), &periods); err != nil {
		return nil, contextutils.WrapError(err, "failed to load periods fixture")
	}
	fixtures.periods = periods.Periods

	var feedback struct {
		Feedback []TestFeedback `yaml:"feedback"`
	}
	if err := loadYAML(filepath.Join(dir, "feedback.yaml"), &feedback); err != nil {
		return nil, contextutils.WrapError(err, "failed to load feedback fixture")
	}
	fixtures.feedback = feedback.Feedback

	return fixtures, nil
}

// loadYAML unmarshals one fixture file into out; a missing file is not an error
func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path) // #nosec G304 -- fixture path comes from the operator
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, out)
}
