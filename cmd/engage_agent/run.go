package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/engage-agent/internal/accounts"
	"github.com/jonathan/engage-agent/internal/batch"
	"github.com/jonathan/engage-agent/internal/config"
	"github.com/jonathan/engage-agent/internal/db"
	"github.com/jonathan/engage-agent/internal/dedupe"
	"github.com/jonathan/engage-agent/internal/driver"
	"github.com/jonathan/engage-agent/internal/observability"
	"github.com/jonathan/engage-agent/internal/sweep"
	"github.com/jonathan/engage-agent/internal/workflow"
)

const accountsSchemaPath = "schemas/accounts.schema.json"

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Process every account: sign-in email, webmail retrieval, like sweep",
	Long: `Runs the full batch: for each account not already completed today, requests a
passwordless sign-in email, logs into the webmail account, opens the sign-in
message, follows its link, and performs a bounded like sweep over the feed.

Configuration can be loaded from a JSON file using --config. Command-line
arguments override config file values. Per-account failures are captured in
the report; the process exits non-zero only on startup errors.`,
	RunE: runBatchCmd,
}

var (
	runConfigPath   string
	runAccounts     string
	runSignInURL    string
	runFeedURL      string
	runMailboxURL   string
	runMailUser     string
	runMailPassword string
	runMaxAttempts  int
	runLikeTarget   int
	runFailCap      int
	runStatePath    string
	runReportDir    string
	runSnapshotDir  string
	runDatabaseURL  string
	runHeadful      bool
	runVerbose      bool
	runLogJSON      bool
)

func init() {
	// Config file flag (processed first)
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")

	runCommand.Flags().StringVarP(&runAccounts, "accounts", "a", "", "Path to accounts JSON file")
	runCommand.Flags().StringVar(&runSignInURL, "signin-url", "", "Passwordless sign-in entry point URL")
	runCommand.Flags().StringVar(&runFeedURL, "feed-url", "", "Content feed URL for the like sweep")
	runCommand.Flags().StringVar(&runMailboxURL, "mailbox-url", "", "Webmail entry point URL")
	runCommand.Flags().StringVar(&runMailUser, "mail-user", "", "Webmail username (defaults to MAIL_USERNAME env var)")
	runCommand.Flags().StringVar(&runMailPassword, "mail-password", "", "Webmail password (defaults to MAIL_PASSWORD env var)")
	runCommand.Flags().IntVar(&runMaxAttempts, "max-attempts", 0, "Retry attempts per account")
	runCommand.Flags().IntVar(&runLikeTarget, "like-target", 0, "Sweep success quota")
	runCommand.Flags().IntVar(&runFailCap, "fail-cap", 0, "Sweep consecutive-failure cap")
	runCommand.Flags().StringVar(&runStatePath, "state", "", "Dedup record store file")
	runCommand.Flags().StringVar(&runReportDir, "report-dir", "", "Batch report directory")
	runCommand.Flags().StringVar(&runSnapshotDir, "snapshot-dir", "", "Failure screenshot directory")
	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	runCommand.Flags().BoolVar(&runHeadful, "headful", false, "Run the browser with a visible window")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed debug information")
	runCommand.Flags().BoolVar(&runLogJSON, "log-json", false, "Emit JSON-formatted logs")

	rootCmd.AddCommand(runCommand)
}

func runBatchCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	// Step 1: Load config file if provided
	var cfg config.Config
	if runConfigPath != "" {
		loadedCfg, err := config.LoadConfig(runConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loadedCfg
	}

	// Step 2: Apply CLI overrides (command-line args take priority)
	// Only override if the flag was explicitly set
	if cmd.Flags().Changed("accounts") {
		cfg.Accounts = runAccounts
	}
	if cmd.Flags().Changed("signin-url") {
		cfg.SignInURL = runSignInURL
	}
	if cmd.Flags().Changed("feed-url") {
		cfg.FeedURL = runFeedURL
	}
	if cmd.Flags().Changed("mailbox-url") {
		cfg.MailboxURL = runMailboxURL
	}
	if cmd.Flags().Changed("mail-user") {
		cfg.MailUser = runMailUser
	}
	if cmd.Flags().Changed("mail-password") {
		cfg.MailPassword = runMailPassword
	}
	if cmd.Flags().Changed("max-attempts") {
		cfg.MaxAttempts = runMaxAttempts
	}
	if cmd.Flags().Changed("like-target") {
		cfg.LikeTarget = runLikeTarget
	}
	if cmd.Flags().Changed("fail-cap") {
		cfg.FailCap = runFailCap
	}
	if cmd.Flags().Changed("state") {
		cfg.StatePath = runStatePath
	}
	if cmd.Flags().Changed("report-dir") {
		cfg.ReportDir = runReportDir
	}
	if cmd.Flags().Changed("snapshot-dir") {
		cfg.SnapshotDir = runSnapshotDir
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = runDatabaseURL
	}
	if cmd.Flags().Changed("headful") {
		cfg.Headful = runHeadful
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = runVerbose
	}
	if cmd.Flags().Changed("log-json") {
		cfg.LogJSON = runLogJSON
	}

	// Step 3: Apply env fallbacks and defaults for unset values
	if cfg.MailUser == "" {
		cfg.MailUser = os.Getenv("MAIL_USERNAME")
	}
	if cfg.MailPassword == "" {
		cfg.MailPassword = os.Getenv("MAIL_PASSWORD")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	defaults := config.Config{
		Accounts:          "accounts.json",
		MaxAttempts:       3,
		LikeTarget:        50,
		FailCap:           5,
		EmailWaitSeconds:  25,
		RetryDelaySeconds: 15,
		AccountGapSeconds: 30,
		StatePath:         "state/dedupe.json",
		ReportDir:         "reports",
		SnapshotDir:       "snapshots",
	}
	cfg = cfg.MergeWithDefaults(defaults)

	// Step 4: Validate required fields
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.SignInURL == "" || cfg.FeedURL == "" || cfg.MailboxURL == "" {
		return fmt.Errorf("--signin-url, --feed-url, and --mailbox-url must be provided (via flag or config)")
	}
	if cfg.MailUser == "" || cfg.MailPassword == "" {
		return fmt.Errorf("webmail credentials missing: set --mail-user/--mail-password or MAIL_USERNAME/MAIL_PASSWORD")
	}

	log := observability.NewLogger(cfg.Verbose, cfg.LogJSON)

	accts, err := accounts.Load(cfg.Accounts, accountsSchemaPath)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	// Optional run history; file-based reporting continues without it
	var history batch.History
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Warn("failed to connect to database, continuing without run history")
		} else {
			defer database.Close()
			if err := database.EnsureSchema(ctx); err != nil {
				log.WithError(err).Warn("failed to ensure history schema, continuing without run history")
			} else {
				history = database
			}
		}
	}

	targets := workflow.DefaultTargets()
	targets.SignInURL = cfg.SignInURL
	targets.MailboxURL = cfg.MailboxURL
	targets.FeedURL = cfg.FeedURL

	waits := workflow.DefaultWaits()
	waits.EmailDelivery = time.Duration(cfg.EmailWaitSeconds) * time.Second

	engine := &sweep.Engine{
		Target:      cfg.LikeTarget,
		FailCap:     cfg.FailCap,
		Item:        sweepItemCriteria(),
		LikedAttr:   "aria-pressed",
		LikedValue:  "true",
		MinDelay:    800 * time.Millisecond,
		MaxDelay:    2500 * time.Millisecond,
		SettleDelay: 1500 * time.Millisecond,
		Log:         log,
	}

	wf := &workflow.Workflow{
		Targets:     targets,
		Waits:       waits,
		Mail:        workflow.MailCredentials{Username: cfg.MailUser, Password: cfg.MailPassword},
		Sweeper:     engine,
		SnapshotDir: cfg.SnapshotDir,
		Log:         log,
	}

	runner := &batch.Runner{
		Launcher:    driver.NewChromeLauncher(),
		SessionCfg:  driver.DefaultSessionConfig().WithHeadless(!cfg.Headful),
		Workflow:    wf,
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  time.Duration(cfg.RetryDelaySeconds) * time.Second,
		Log:         log,
	}

	scheduler := &batch.Scheduler{
		Store:        dedupe.NewStore(cfg.StatePath, log),
		Runner:       runner,
		History:      history,
		ReportDir:    cfg.ReportDir,
		AccountDelay: time.Duration(cfg.AccountGapSeconds) * time.Second,
		Log:          log,
	}

	report, err := scheduler.RunBatch(ctx, accts)
	if err != nil {
		return err
	}

	if cfg.Verbose {
		printer := observability.NewPrinter(os.Stdout)
		for i := range report.Results {
			printer.PrintAccountResult(&report.Results[i])
		}
		printer.PrintBatchSummary(report)
	}

	// Per-account failures live in the report; only startup errors exit non-zero.
	return nil
}

func sweepItemCriteria() driver.Criteria {
	return driver.Criteria{Selector: `article [data-testid="like-button"]`}
}
