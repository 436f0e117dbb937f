package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	slogmulti "github.com/samber/slog-multi"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/accessibilityflow/internal/finetune"
)

var (
	dir          string
	templateOnly bool
	logFile      string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "finetune-export",
	Short: "Build an alt-text fine-tuning dataset from labelled non-compliant PDFs",
	Long: `finetune-export reads <dir>/non_compliant/*.pdf and either writes an empty
labels_template.json (--template-only) or combines the images with <dir>/labels.json
into openai_training.jsonl.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		cleanup, err := setupLogger()
		if err != nil {
			return err
		}
		cobra.OnFinalize(func() { _ = cleanup() })
		return nil
	},
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&dir, "dir", "d", "training", "training directory")
	rootCmd.Flags().BoolVar(&templateOnly, "template-only", false, "write labels_template.json instead of the JSONL dataset")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogger logs text to stderr and, with --log-file, JSON to a file as well.
func setupLogger() (func() error, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if logFile == "" {
		slog.SetDefault(slog.New(stderrHandler))
		return func() error { return nil }, nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(slogmulti.Fanout(stderrHandler, fileHandler)))
	return file.Close, nil
}

func run(cmd *cobra.Command, args []string) error {
	lister := finetune.NewBuilder(dir)
	pdfs, err := lister.PDFs()
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(pdfs),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Extracting images"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprint(os.Stderr, "\n") }),
	)
	builder := finetune.NewBuilder(dir, finetune.WithProgress(func(string) { _ = bar.Add(1) }))

	if templateOnly {
		out, n, err := builder.WriteTemplate(cmd.Context())
		if err != nil {
			return err
		}
		slog.Info("Wrote label template.", "path", out, "images", n)
		fmt.Fprintf(cmd.OutOrStdout(), "Fill in alt, longdesc and decorative for each image, save as %s and re-run without --template-only.\n", finetune.LabelsFile)
		return nil
	}

	out, n, err := builder.WriteTrainingSet(cmd.Context())
	if err != nil {
		return err
	}
	slog.Info("Wrote training examples.", "path", out, "examples", n)
	return nil
}
