package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kozaktomas/face-verifier/internal/config"
	"github.com/spf13/cobra"
)

var (
	captureDir string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "face-verifier",
	Short: "A CLI tool for verifying that two photos show the same person",
	Long: `Face Verifier compares two face photos with several face recognition
models (Facenet, ArcFace, VGG-Face) through a DeepFace server or a face
embedding server, combines their answers into a verdict and optionally
estimates age, gender and emotion for both faces.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(cmd)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&captureDir, "capture", "", "Directory to save API responses for testing")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from LOG_LEVEL or warn)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// setupLogging installs the default slog logger. Logs go to stderr so they
// never mix with the report.
func setupLogging(cmd *cobra.Command) {
	level := logLevel
	if level == "" {
		level = config.Load().LogLevel
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: config.ParseLogLevel(level)})
	slog.SetDefault(slog.New(handler))
}
