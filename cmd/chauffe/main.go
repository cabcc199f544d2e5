package main

import (
	"fmt"
	"os"
	"time"

	"chauffe/internal/cloudmanager"
	"chauffe/internal/config"
	"chauffe/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose    bool
	configPath string
	baseURL    string
	timeout    time.Duration
	jsonOutput bool

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "chauffe",
	Short: "chauffe - CloudManager client and DLOID tooling",
	Long: `chauffe talks to a CloudManager deployment on behalf of the MyChauffe webapp.

It checks CloudManager version compatibility, lists and creates blockchains,
summarises an owner's CHAUFFEcoin holdings from their DLOID records, and runs
an end-to-end smoke test against a live service.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if baseURL != "" {
			loaded.CloudManager.BaseURL = baseURL
		}
		if timeout > 0 {
			loaded.CloudManager.Timeout = timeout.String()
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded

		if _, err := logging.Initialize(logging.Options{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			File:       cfg.Logging.File,
			Categories: cfg.Logging.Categories,
			Verbose:    verbose,
		}); err != nil {
			return err
		}
		logging.Get(logging.CategoryBoot).Debug("Config loaded",
			zap.String("path", configPath),
			zap.String("base_url", cfg.CloudManager.BaseURL))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check CloudManager health and version compatibility",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every blockchain CloudManager manages",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var summaryCmd = &cobra.Command{
	Use:   "summary [owner-uuid]",
	Short: "Summarise one owner's blockchains and CHAUFFEcoin total",
	Long: `Fetches the owner's blockchains with their chain state and totals the
CHAUFFEcoin quantity encoded in each DLOID. Malformed DLOIDs are skipped and
reported. Results are cached in SQLite when the cache is enabled.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummary,
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a blockchain",
	Long: `Creates a blockchain for an owner. The CloudManager version is checked
first; an unreachable service refuses the create, an unlisted version only warns.

Example:
  chauffe create --owner 123e4567-e89b-12d3-a456-426614174000 \
    --first-name Ada --last-name Lovelace --dloid 0000100000LYN5000000700YP`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

var generateNameCmd = &cobra.Command{
	Use:   "generate-name",
	Short: "Ask CloudManager to generate a controller name",
	Args:  cobra.NoArgs,
	RunE:  runGenerateName,
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate [dloid...]",
	Short: "Total the CHAUFFEcoin quantity of DLOID records offline",
	Long: `Decodes each DLOID and sums the quantities. Records that fail to decode
are skipped and listed. With --file, records are read one per line, or as a
JSON array of packed strings and structured objects.`,
	RunE: runAggregate,
}

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Run the end-to-end smoke test against CloudManager",
	Long: `Runs health, list and create (with fixed sentinel data) against the
configured CloudManager. All three passing is success, two is a warning,
anything less fails.`,
	Args: cobra.NoArgs,
	RunE: runSmoke,
}

var configInitCmd = &cobra.Command{
	Use:   "config-init",
	Short: "Write the effective configuration to the --config path",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "chauffe.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "CloudManager base URL (overrides config)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Per-request timeout (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of a styled report")

	summaryCmd.Flags().BoolVar(&summaryRefresh, "refresh", false, "Ignore and replace any cached summary")

	createCmd.Flags().StringVar(&createOpts.owner, "owner", "", "Owner UUID (required)")
	createCmd.Flags().StringVar(&createOpts.name, "name", "", "Blockchain name")
	createCmd.Flags().StringVar(&createOpts.firstName, "first-name", "", "Owner first name")
	createCmd.Flags().StringVar(&createOpts.lastName, "last-name", "", "Owner last name")
	createCmd.Flags().IntVar(&createOpts.licenses, "licenses", 0, "Existing licence count")
	createCmd.Flags().StringVar(&createOpts.dloid, "dloid", "", "Packed 25-character DLOID (required)")
	createCmd.Flags().StringVar(&createOpts.role, "role", "", "Controller role (default manager)")
	createCmd.Flags().IntVar(&createOpts.difficulty, "difficulty", 0, "Mining difficulty (default 4)")

	generateNameCmd.Flags().StringVar(&nameOpts.FirstName, "first-name", "", "Owner first name")
	generateNameCmd.Flags().StringVar(&nameOpts.LastName, "last-name", "", "Owner last name")
	generateNameCmd.Flags().IntVar(&nameOpts.ExistingLicenses, "licenses", 0, "Existing licence count")
	generateNameCmd.Flags().StringVar(&nameOpts.OwnerID, "owner", "", "Owner UUID")

	aggregateCmd.Flags().StringVarP(&aggregateFile, "file", "f", "", "Read DLOID records from a file")

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(generateNameCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(smokeCmd)
	rootCmd.AddCommand(configInitCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// clientConfig maps the loaded config onto the client's.
func clientConfig(c *config.Config) cloudmanager.Config {
	return cloudmanager.Config{
		BaseURL:            c.CloudManager.BaseURL,
		Timeout:            c.GetTimeout(),
		UserAgent:          c.CloudManager.UserAgent,
		CompatibleVersions: c.Compatibility.Versions,
		MaxConcurrency:     c.CloudManager.MaxConcurrency,
		Audit:              logging.Audit(),
	}
}
