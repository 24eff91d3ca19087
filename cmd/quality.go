package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/kozaktomas/face-verifier/internal/constants"
	"github.com/kozaktomas/face-verifier/internal/quality"
	"github.com/spf13/cobra"
)

var qualityCmd = &cobra.Command{
	Use:   "quality <image>...",
	Short: "Score the quality of face photos",
	Long: `Prints the quality score of each image with its resolution, sharpness and
lighting sub-scores. Scores range from 0 to 1; below 0.5 the verification
is likely to be less accurate.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuality,
}

func init() {
	rootCmd.AddCommand(qualityCmd)

	qualityCmd.Flags().Bool("json", false, "Output as JSON")
}

// qualityRow is one image of the quality command output.
type qualityRow struct {
	Path       string              `json:"path"`
	Assessment *quality.Assessment `json:"assessment,omitempty"`
	LowQuality bool                `json:"low_quality"`
	Error      string              `json:"error,omitempty"`
}

func runQuality(cmd *cobra.Command, args []string) error {
	scorer := quality.NewScorer()

	rows := make([]qualityRow, 0, len(args))
	for _, path := range args {
		path = cleanPath(path)
		row := qualityRow{Path: path, LowQuality: true}
		a, err := scorer.Assess(path)
		if err != nil {
			row.Error = err.Error()
		} else {
			row.Assessment = a
			row.LowQuality = a.Score < constants.LowQualityThreshold
		}
		rows = append(rows, row)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(cmd.OutOrStdout(), rows)
	}

	printQualityTable(cmd.OutOrStdout(), rows)
	return nil
}

func printQualityTable(out io.Writer, rows []qualityRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IMAGE\tSIZE\tRESOLUTION\tSHARPNESS\tLIGHTING\tSCORE\t")
	fmt.Fprintln(w, "-----\t----\t----------\t---------\t--------\t-----\t")

	for _, r := range rows {
		if r.Assessment == nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t%.2f\t%s\n", r.Path, 0.0, r.Error)
			continue
		}
		a := r.Assessment
		note := ""
		if r.LowQuality {
			note = "low quality"
		}
		fmt.Fprintf(w, "%s\t%dx%d\t%.2f\t%.2f (var %.1f)\t%.2f (L* %.0f)\t%.2f\t%s\n",
			r.Path, a.Width, a.Height, a.Resolution, a.Sharpness, a.LaplacianVariance, a.Lighting, a.MeanLightness, a.Score, note)
	}

	w.Flush()
}

func outputJSON(out io.Writer, data any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
