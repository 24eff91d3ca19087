package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/kozaktomas/face-verifier/internal/config"
	"github.com/kozaktomas/face-verifier/internal/constants"
	"github.com/kozaktomas/face-verifier/internal/policy"
	"github.com/kozaktomas/face-verifier/internal/report"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>...",
	Short: "Estimate age, gender and emotion of faces",
	Long: `Runs only the face analysis stage on each image. An image where the
analysis fails is reported as skipped; the remaining images are still analyzed.

Examples:
  # Analyze with DeepFace
  face-verifier analyze alice.jpg bob.jpg

  # Analyze with a local vision model
  face-verifier analyze alice.jpg --analyzer ollama`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().Bool("json", false, "Output as JSON")
	analyzeCmd.Flags().String("analyzer", "", "Face analyzer: deepface, openai, gemini or ollama (default from ANALYZER)")
	analyzeCmd.Flags().String("detector", "", "Face detector backend for deepface (default from DETECTOR_BACKEND or the policy)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	name := stringFlagOr(cmd, "analyzer", cfg.Verify.Analyzer)
	if name == constants.AnalyzerNone {
		return fmt.Errorf("analyzer %q cannot be used with analyze", name)
	}
	detector := stringFlagOr(cmd, "detector", cfg.Verify.Detector)
	if detector == "" {
		detector = policy.Default().Detector
	}

	analyzer, err := newAnalyzer(ctx, cfg, name, detector)
	if err != nil {
		return err
	}

	analyses := make([]report.ImageAnalysis, 0, len(args))
	for i, path := range args {
		path = cleanPath(path)
		d, err := analyzer.Analyze(ctx, path)
		if err != nil {
			slog.Info("face analysis skipped", "analyzer", analyzer.Name(), "image", path, "error", err)
		}
		analyses = append(analyses, report.NewImageAnalysis(i+1, path, d, err))
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(cmd.OutOrStdout(), analyses)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Analyzer: %s\n", analyzer.Name())
	for _, a := range analyses {
		fmt.Fprintf(out, "\nImage %d: %s\n", a.Image, a.Path)
		if a.Err != nil {
			fmt.Fprintf(out, "Analysis skipped (%s)\n", a.Skipped)
			continue
		}
		report.PrintDemographics(out, a.Demographics)
	}
	return nil
}
