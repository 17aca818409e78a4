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
	flags         cli.CommonFlags
	dryRunFlag    bool
	overwriteFlag bool
)

// rootCmd is the main Cobra command for the media-tag CLI.
var rootCmd = &cobra.Command{
	Use:   "media-tag <directory>",
	Short: "Write AI-generated titles, descriptions and keywords into photo metadata",
	Long: `Media Tag walks a directory of photos, asks a vision model served by an
OpenAI-compatible endpoint for a title, a description and keywords, and
embeds them in each image's EXIF/XMP metadata with exiftool.

Every other metadata field is preserved, as are the file's permissions and
timestamps. Images that already have a title and keywords are skipped unless
--overwrite is given. Use --dry-run to see what would be written.

Examples:
  media-tag ./photos --dry-run
  media-tag ./photos -w 3 --json-mode
  media-tag ./photos --overwrite --report tags.json`,
	Args: cobra.ExactArgs(1),
	Run:  runMain,
}

func init() {
	flags.Bind(rootCmd)
	rootCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Report the tags without modifying any file")
	rootCmd.Flags().BoolVar(&overwriteFlag, "overwrite", false, "Re-tag images that already have a title and keywords")
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
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = dryRunFlag
	}

	srcDir := cli.ValidateAndResolveDirectory(args[0])

	// exiftool is only needed when files are actually written
	var writer filehandler.MetadataWriter
	if !cfg.DryRun {
		et, err := filehandler.NewExifToolWriter()
		if err != nil {
			log.Fatal().Err(err).Msg("exiftool is required to write tags (install it or use --dry-run)")
		}
		defer et.Close()
		writer = et
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	client := cli.InitInferenceClient(ctx, cfg, flags.SkipProbe)

	run := logging.NewRunLogger("tag").
		Source(srcDir).
		Feature("dry_run", cfg.DryRun).
		Feature("overwrite", overwriteFlag).
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
		Extensions: cfg.ExtensionsOr(filehandler.DefaultTagExtensions),
		Skip:       policy.SkipTagged(overwriteFlag),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open source directory")
	}

	tagger := policy.NewTagger(writer, cfg.DryRun, cfg.IncludeMetadata)

	mode := "write"
	if cfg.DryRun {
		mode = "DRY RUN (no files modified)"
	}
	cli.PrintHeader(os.Stdout, "Photo Tag",
		cli.Field{Label: "Directory", Value: srcDir},
		cli.Field{Label: "Endpoint", Value: cfg.EndpointURL},
		cli.Field{Label: "Workers", Value: strconv.Itoa(cfg.WorkerCount)},
		cli.Field{Label: "Mode", Value: mode},
	)

	results, summary, err := cli.RunPipeline[filehandler.Tags](ctx, cfg, client, tagger, walker, os.Stdout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start worker pool")
	}
	cli.PrintSummary(os.Stdout, summary, walker.Warnings())

	if flags.ReportPath != "" {
		r := report.Build(run.RunID(), tagger.Name(), summary, results)
		if err := report.Write(flags.ReportPath, r); err != nil {
			log.Error().Err(err).Str("path", flags.ReportPath).Msg("Failed to write report")
			return
		}
		log.Info().Str("path", flags.ReportPath).Msg("Report written")
	}
}
