package utils

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/booking-admin/internal/connector"
	"github.com/vitebski/booking-admin/pkg/models"
)

// SetupLogging configures the logging system. Logs go to stderr so that
// tables and exports on stdout stay clean.
func SetupLogging(logLevel string) *logrus.Logger {
	logger := logrus.New()

	// Get log level from environment variable or parameter
	levelStr := logLevel
	if levelStr == "" {
		levelStr = os.Getenv("ADMIN_LOG_LEVEL")
		if levelStr == "" {
			levelStr = "warn"
		}
	}

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stderr)

	logger.Debugf("Logging configured with level: %s", level)
	return logger
}

// LoadEnvironmentVariables loads environment variables from a .env file and
// reports whether DATABASE_URL is available afterwards
func LoadEnvironmentVariables(envFile string, logger *logrus.Logger) bool {
	// Check if a sample .env file exists but not the actual .env file
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		sampleEnvFile := envFile + ".sample"
		if _, err := os.Stat(sampleEnvFile); err == nil {
			logger.Infof("No %s file found, but %s exists. Consider copying %s to %s and updating it.",
				envFile, sampleEnvFile, sampleEnvFile, envFile)
		}
	}

	// Existing environment variables win over the file
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.Warningf("Error loading %s file: %v", envFile, err)
		} else {
			logger.Infof("Loaded environment variables from %s", envFile)
		}
	} else {
		logger.Debugf("No %s file found, using existing environment variables", envFile)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Debug("DATABASE_URL is not set; expecting --database-url or a config file")
		return false
	}

	if logger.Level == logrus.DebugLevel {
		logger.Debugf("DATABASE_URL=%s", MaskURL(databaseURL))
		for _, env := range os.Environ() {
			if strings.HasPrefix(env, "ADMIN_") {
				logger.Debug(env)
			}
		}
	}

	return true
}

// MaskURL hides the password of a connection URL
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "********")
	}
	return u.String()
}

// GetEnvInt gets an integer value from environment variable
func GetEnvInt(varName string, defaultValue int) int {
	value := os.Getenv(varName)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// ValidateDatabaseURL checks that a connection URL names a supported store
func ValidateDatabaseURL(databaseURL string, logger *logrus.Logger) bool {
	if databaseURL == "" {
		logger.Error("Database URL is required")
		return false
	}

	dialect, _, err := connector.ParseURL(databaseURL)
	if err != nil {
		logger.Errorf("Invalid database URL %s: %v", MaskURL(databaseURL), err)
		return false
	}

	logger.Debugf("Using %s store", dialect)
	return true
}

// PrintSummary prints a summary of a seeding run
func PrintSummary(w io.Writer, table string, result *models.SeedResult) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(w, "SEEDING SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Table: %s\n", table)
	fmt.Fprintf(w, "Records requested: %d\n", result.Requested)
	fmt.Fprintf(w, "Records inserted: %d\n", result.Inserted)
	fmt.Fprintf(w, "Retries: %d\n", result.Retries)
	fmt.Fprintf(w, "Failed records: %d\n", len(result.Failures))

	if len(result.Failures) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		for _, failure := range result.Failures {
			fmt.Fprintf(w, "  - %s\n", failure)
		}
	}

	fmt.Fprintln(w, strings.Repeat("=", 50))
}
