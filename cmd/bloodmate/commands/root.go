package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bloodmate/donor-service/internal/config"
	"github.com/bloodmate/donor-service/internal/logging"
)

var (
	envFile string
	verbose bool
	noColor bool

	// cfg is populated by PersistentPreRunE before any subcommand runs
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "bloodmate",
	Short: "BloodMate donor service",
	Long: `BloodMate registers blood donors, screens uploaded medical reports with OCR
and serves donor lookups and QR codes over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}

		if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		} else if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %s not found, using system environment variables\n", envFile)
		}

		loaded, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := loaded.LogLevel
		if verbose {
			level = "debug"
		}
		logging.Configure(logging.Config{Level: level, Format: loaded.LogFormat})

		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
