package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bloodmate/donor-service/internal/intake"
	"github.com/bloodmate/donor-service/internal/logging"
)

var (
	scanJSON    bool
	scanTimeout time.Duration
)

var scanCmd = &cobra.Command{
	Use:   "scan <file>",
	Short: "Run OCR and the eligibility rules over a local report",
	Long: `Scan extracts text from an image or PDF medical report and prints the
eligibility verdict. Nothing is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the raw intake result as JSON")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 5*time.Minute, "overall scan deadline")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("open report: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	// scan is one-shot, rendered pages stay next to the input
	pipeline, err := buildPipeline(cfg, nil, logging.NewLogger("scan"))
	if err != nil {
		return err
	}

	result, err := pipeline.Process(ctx, intake.NewLocalDocument(path))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if scanJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	bold := color.New(color.Bold)
	bold.Fprintf(out, "File: ")
	fmt.Fprintln(out, path)
	if result.PageCount > 0 {
		bold.Fprintf(out, "Pages: ")
		fmt.Fprintln(out, result.PageCount)
	}

	verdict := result.Eligibility
	bold.Fprintf(out, "Eligibility: ")
	switch {
	case !verdict.Evaluated():
		color.New(color.FgYellow).Fprintf(out, "not checked (%s)\n", verdict.Reason)
	case *verdict.Eligible:
		color.New(color.FgGreen).Fprintf(out, "eligible (%s)\n", verdict.Reason)
	default:
		color.New(color.FgRed).Fprintf(out, "not eligible (%s)\n", verdict.Reason)
	}

	if verbose && result.ExtractedText != nil {
		bold.Fprintln(out, "\nExtracted text:")
		fmt.Fprintln(out, *result.ExtractedText)
	}
	return nil
}
