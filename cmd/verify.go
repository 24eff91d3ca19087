package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/kozaktomas/face-verifier/internal/analysis"
	"github.com/kozaktomas/face-verifier/internal/config"
	"github.com/kozaktomas/face-verifier/internal/orchestrator"
	"github.com/kozaktomas/face-verifier/internal/quality"
	"github.com/kozaktomas/face-verifier/internal/report"
	"github.com/kozaktomas/face-verifier/internal/verify"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [image-a image-b]",
	Short: "Verify that two photos show the same person",
	Long: `Scores the quality of both photos, compares them with every model of the
policy (Facenet, ArcFace and VGG-Face by default) and prints a report with
a verdict. Afterwards age, gender and emotion are estimated for both faces.

Without arguments the image paths are read interactively.

Examples:
  # Verify two photos
  face-verifier verify alice-2019.jpg alice-2024.jpg

  # Ask for the paths and keep the window open afterwards
  face-verifier verify

  # Run all models at once and print JSON
  face-verifier verify a.jpg b.jpg --parallel --json

  # Use the embedding server and skip the analysis
  face-verifier verify a.jpg b.jpg --backend embedding --no-analysis`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("accepts 0 or 2 image paths, received %d", len(args))
		}
		return nil
	},
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().Bool("json", false, "Output the report as JSON")
	verifyCmd.Flags().Bool("parallel", false, "Run all models concurrently")
	verifyCmd.Flags().Bool("isolate-failures", false, "Record a failing model as no match instead of aborting")
	verifyCmd.Flags().Bool("no-analysis", false, "Skip age, gender and emotion analysis")
	verifyCmd.Flags().String("policy", "", "YAML file overriding the model policy (default from FACE_POLICY_FILE)")
	verifyCmd.Flags().String("backend", "", "Verification backend: deepface or embedding (default from FACE_BACKEND)")
	verifyCmd.Flags().String("analyzer", "", "Face analyzer: deepface, openai, gemini, ollama or none (default from ANALYZER)")
	verifyCmd.Flags().String("detector", "", "Face detector backend (default from the policy)")
	verifyCmd.Flags().Bool("pause", true, "Wait for Enter before exiting when paths were read interactively")
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	jsonOutput := mustGetBool(cmd, "json")
	out := cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	interactive := len(args) == 0
	stdin := bufio.NewReader(cmd.InOrStdin())
	imageA, imageB := "", ""
	if interactive {
		fmt.Fprintln(out, "=== PROFESSIONAL FACE VERIFICATION SYSTEM ===")
		var err error
		if imageA, err = promptLine(stdin, out, "First image path: "); err != nil {
			return err
		}
		if imageB, err = promptLine(stdin, out, "Second image path: "); err != nil {
			return err
		}
	} else {
		imageA, imageB = cleanPath(args[0]), cleanPath(args[1])
	}

	var sink report.Sink = report.NewTextSink(out)
	if jsonOutput {
		sink = report.NewJSONSink(out)
	}

	// Missing inputs are reported before any provider is configured.
	var err error
	if missing := orchestrator.MissingInputs(imageA, imageB); len(missing) > 0 {
		err = orchestrator.New(nil, nil, nil, sink).Run(ctx, imageA, imageB)
	} else {
		err = verifyImages(ctx, cmd, cfg, sink, imageA, imageB)
	}

	if interactive && mustGetBool(cmd, "pause") && !jsonOutput {
		waitForEnter(stdin, out)
	}

	// Both outcomes were already reported to the user.
	if errors.Is(err, orchestrator.ErrInputNotFound) || errors.Is(err, verify.ErrVerification) {
		return nil
	}
	return err
}

// verifyImages builds the policy and providers and runs the full verification.
func verifyImages(ctx context.Context, cmd *cobra.Command, cfg *config.Config, sink report.Sink, imageA, imageB string) error {
	pol, err := loadPolicy(stringFlagOr(cmd, "policy", cfg.Verify.PolicyFile), stringFlagOr(cmd, "detector", cfg.Verify.Detector))
	if err != nil {
		return err
	}

	backend, err := newBackend(cfg, stringFlagOr(cmd, "backend", cfg.Verify.Backend))
	if err != nil {
		return err
	}

	var analyzer analysis.Analyzer
	if !mustGetBool(cmd, "no-analysis") {
		a, err := newAnalyzer(ctx, cfg, stringFlagOr(cmd, "analyzer", cfg.Verify.Analyzer), pol.Detector)
		if err != nil {
			return err
		}
		analyzer = a
	}

	opts := verify.Options{
		Parallel:        mustGetBool(cmd, "parallel"),
		IsolateFailures: mustGetBool(cmd, "isolate-failures"),
	}
	var bar *progressbar.ProgressBar
	if !mustGetBool(cmd, "json") {
		bar = newModelProgressBar(cmd.ErrOrStderr(), len(pol.Models))
		opts.OnProgress = func(r verify.ModelResult) {
			bar.Describe(r.Model)
			_ = bar.Add(1)
		}
	}

	o := orchestrator.New(quality.NewScorer(), verify.NewVerifier(backend, pol, opts), analyzer, sink)
	err = o.Run(ctx, imageA, imageB)
	if bar != nil {
		_ = bar.Finish()
	}
	return err
}

func newModelProgressBar(w io.Writer, models int) *progressbar.ProgressBar {
	return progressbar.NewOptions(models,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Verifying"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("models"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionFullWidth(),
	)
}
