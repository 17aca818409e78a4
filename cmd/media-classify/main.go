package main

import (
	"context"
	"os"
	"strconv"

	"github.com/fpang/photo-curator/internal/cli"
	"github.com/fpang/photo-curator/internal/filehandler"
	"github.com/fpang/photo-curator/internal/logging"
	"github.com/fpang/photo-curator/internal/policy"
	"github.com/fpang/photo-curator/internal/report"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// CLI flags
var (
	flags      cli.CommonFlags
	outputFlag string
)

// rootCmd is the main Cobra command for the media-classify CLI.
var rootCmd = &cobra.Command{
	Use:   "media-classify <directory>",
	Short: "Score photos with a local vision model and sort them into score folders",
	Long: `Media Classify walks a directory of photos, asks a vision model served by an
OpenAI-compatible endpoint (LM Studio, llama.cpp, Ollama, vLLM) to rate each
image from 0 to 100, and moves it to <output>/<score>/<relative path>.

Files already named with a three-digit score prefix (087__name.jpg) are left
alone. Failures are logged and counted; they never stop the run. With
dry_run: true in the config file nothing is moved; each destination is logged.

Examples:
  media-classify ./photos -o ./sorted
  media-classify ./photos -o ./sorted -w 8 --endpoint http://gpu-box:1234/v1/chat/completions
  media-classify ./photos -o ./sorted --with-metadata --report run.json.zst`,
	Args: cobra.ExactArgs(1),
	Run:  runMain,
}

func init() {
	flags.Bind(rootCmd)
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Root directory for score folders (required)")
	_ = rootCmd.MarkFlagRequired("output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) {
	logging.Init(flags.LogLevel)

	cfg, err := flags.Resolve(cmd)
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration error")
	}

	srcDir := cli.ValidateAndResolveDirectory(args[0])
	outDir, err := cli.ResolveOutputDirectory(outputFlag, !cfg.DryRun)
	if err != nil {
		log.Fatal().Err(err).Str("path", outputFlag).Msg("Invalid output directory")
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	client := cli.InitInferenceClient(ctx, cfg, flags.SkipProbe)

	run := logging.NewRunLogger("classify").
		Source(srcDir).
		Output(outDir).
		Feature("dry_run", cfg.DryRun).
		Feature("include_metadata", cfg.IncludeMetadata).
		Feature("json_mode", cfg.JSONMode).
		Config("endpoint", cfg.EndpointURL).
		Config("model", cfg.Model).
		Config("workers", strconv.Itoa(cfg.WorkerCount)).
		Config("max_retries", strconv.Itoa(cfg.MaxRetries)).
		Config("timeout", cfg.Timeout().String())
	run.Log()
	log.Logger = run.Logger()

	walker, err := filehandler.NewWalker(srcDir, filehandler.WalkOptions{
		Extensions:  cfg.ExtensionsOr(filehandler.DefaultClassifyExtensions),
		ExcludeDirs: []string{outDir},
		Skip:        policy.SkipLegacy,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open source directory")
	}

	classifier := policy.NewClassifier(outDir, cfg.DryRun, cfg.IncludeMetadata)

	mode := "move"
	if cfg.DryRun {
		mode = "DRY RUN (no files moved)"
	}
	cli.PrintHeader(os.Stdout, "Photo Classify",
		cli.Field{Label: "Directory", Value: srcDir},
		cli.Field{Label: "Output", Value: outDir},
		cli.Field{Label: "Endpoint", Value: cfg.EndpointURL},
		cli.Field{Label: "Workers", Value: strconv.Itoa(cfg.WorkerCount)},
		cli.Field{Label: "Mode", Value: mode},
	)

	results, summary, err := cli.RunPipeline[int](ctx, cfg, client, classifier, walker, os.Stdout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start worker pool")
	}
	cli.PrintSummary(os.Stdout, summary, walker.Warnings())

	if flags.ReportPath != "" {
		r := report.Build(run.RunID(), classifier.Name(), summary, results)
		if err := report.Write(flags.ReportPath, r); err != nil {
			log.Error().Err(err).Str("path", flags.ReportPath).Msg("Failed to write report")
			return
		}
		log.Info().Str("path", flags.ReportPath).Msg("Report written")
	}
}
