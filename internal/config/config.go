// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via
// CLI flags.
type Config struct {
	// Inputs
	Accounts string `json:"accounts,omitempty"` // Path to accounts JSON file

	// Target site
	SignInURL string `json:"signin_url,omitempty" validate:"omitempty,url"` // Passwordless sign-in entry point
	FeedURL   string `json:"feed_url,omitempty" validate:"omitempty,url"`   // Content feed to sweep

	// Webmail
	MailboxURL   string `json:"mailbox_url,omitempty" validate:"omitempty,url"` // Webmail entry point
	MailUser     string `json:"mail_user,omitempty"`                            // Webmail username (or MAIL_USERNAME env)
	MailPassword string `json:"mail_password,omitempty"`                        // Webmail password (or MAIL_PASSWORD env)

	// Limits
	MaxAttempts int `json:"max_attempts,omitempty"` // Retry attempts per account
	LikeTarget  int `json:"like_target,omitempty"`  // Sweep success quota
	FailCap     int `json:"fail_cap,omitempty"`     // Sweep consecutive-failure cap

	// Delays (seconds)
	EmailWaitSeconds  int `json:"email_wait_seconds,omitempty"`  // Wait for email delivery
	RetryDelaySeconds int `json:"retry_delay_seconds,omitempty"` // Between failed attempts
	AccountGapSeconds int `json:"account_gap_seconds,omitempty"` // Between accounts

	// Paths
	StatePath   string `json:"state_path,omitempty"`   // Dedup record store file
	ReportDir   string `json:"report_dir,omitempty"`   // Batch report directory
	SnapshotDir string `json:"snapshot_dir,omitempty"` // Failure screenshot directory

	// Behavior
	DatabaseURL string `json:"database_url,omitempty"` // Optional PostgreSQL history (or DATABASE_URL env)
	Headful     bool   `json:"headful,omitempty"`      // Run the browser with a visible window
	Verbose     bool   `json:"verbose,omitempty"`      // Print detailed debug information
	LogJSON     bool   `json:"log_json,omitempty"`     // Emit JSON-formatted logs
}

var validate = validator.New()

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: required fields are checked by the CLI after merging flags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if c.MaxAttempts < 0 {
		return fmt.Errorf("config error: 'max_attempts' must be non-negative")
	}
	if c.LikeTarget < 0 {
		return fmt.Errorf("config error: 'like_target' must be non-negative")
	}
	if c.FailCap < 0 {
		return fmt.Errorf("config error: 'fail_cap' must be non-negative")
	}

	if c.Accounts != "" {
		if _, err := os.Stat(c.Accounts); os.IsNotExist(err) {
			return fmt.Errorf("config error: accounts file not found: %s", c.Accounts)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with unset fields filled from
// defaults. This applies config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.Accounts == "" {
		result.Accounts = defaults.Accounts
	}
	if result.SignInURL == "" {
		result.SignInURL = defaults.SignInURL
	}
	if result.FeedURL == "" {
		result.FeedURL = defaults.FeedURL
	}
	if result.MailboxURL == "" {
		result.MailboxURL = defaults.MailboxURL
	}
	if result.MailUser == "" {
		result.MailUser = defaults.MailUser
	}
	if result.MailPassword == "" {
		result.MailPassword = defaults.MailPassword
	}
	if result.StatePath == "" {
		result.StatePath = defaults.StatePath
	}
	if result.ReportDir == "" {
		result.ReportDir = defaults.ReportDir
	}
	if result.SnapshotDir == "" {
		result.SnapshotDir = defaults.SnapshotDir
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}

	// Int fields: use default if zero
	if result.MaxAttempts == 0 {
		result.MaxAttempts = defaults.MaxAttempts
	}
	if result.LikeTarget == 0 {
		result.LikeTarget = defaults.LikeTarget
	}
	if result.FailCap == 0 {
		result.FailCap = defaults.FailCap
	}
	if result.EmailWaitSeconds == 0 {
		result.EmailWaitSeconds = defaults.EmailWaitSeconds
	}
	if result.RetryDelaySeconds == 0 {
		result.RetryDelaySeconds = defaults.RetryDelaySeconds
	}
	if result.AccountGapSeconds == 0 {
		result.AccountGapSeconds = defaults.AccountGapSeconds
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
