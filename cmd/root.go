package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/crev/internal/logging"
	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/output"
	"github.com/joescharf/crev/internal/review"
	"github.com/joescharf/crev/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store
	logger    *zap.SugaredLogger

	verbose bool
	dryRun  bool

	// Set from main via Execute.
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "crev",
	Short: "Code review with AI suggestions and peer voting",
	Long: `crev sends submitted code to a reasoning service for a review,
runs the original and the suggested code in a sandbox, and tracks the
review through developer votes and lead sign-off.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Out, "crev %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	},
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/crev/config.yaml)")
	rootCmd.PersistentFlags().StringP("user", "u", "", "Act as this user (default auth.username)")
	rootCmd.PersistentFlags().String("password", "", "Password for --user (default auth.password)")
	_ = viper.BindPFlag("auth.username", rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag("auth.password", rootCmd.PersistentFlags().Lookup("password"))

	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "crev")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CREV")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	setDefaults(filepath.Join(home, ".config", "crev"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "crev.db"))
	for _, s := range settings {
		if !s.derived {
			viper.SetDefault(s.key, s.def)
		}
	}
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Store and logger are created lazily so config/version work without a db.
}

// rootRun handles `crev` with no subcommand: list pending reviews, or show help.
func rootRun(cmd *cobra.Command) error {
	if _, err := getStore(); err != nil {
		return cmd.Help()
	}
	reviewStatus = string(models.ReviewStatusPending)
	return reviewListRun()
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getLogger returns the shared logger, building it from config on first call.
func getLogger() *zap.SugaredLogger {
	if logger != nil {
		return logger
	}
	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	l, err := logging.New(logging.Config{
		Level:  level,
		Format: viper.GetString("log.format"),
	})
	if err != nil {
		ui.Warning("Logger config invalid, logging disabled: %v", err)
		l = zap.NewNop().Sugar()
	}
	logger = l
	return logger
}

// newService wires the review service from config. Without an API key the
// service still lists and votes; submissions fail as unavailable.
func newService() (*review.Service, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	log := getLogger()
	cfg, err := review.DefaultConfig()
	if err != nil {
		return nil, err
	}

	client := newLLMClient()
	if client == nil {
		ui.VerboseLog("No anthropic.api_key configured, reasoning disabled")
		return review.NewService(s, nil, nil, cfg, log), nil
	}

	executor, err := newExecutor()
	if err != nil {
		return nil, err
	}
	p := review.NewPipeline(client, executor, cfg, log)
	return review.NewService(s, p, client, cfg, log), nil
}
