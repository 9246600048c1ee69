// internal/cli/search.go
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/law-makers/rednote/internal/config"
	"github.com/law-makers/rednote/internal/engine"
	"github.com/law-makers/rednote/internal/engine/scrape"
	"github.com/law-makers/rednote/internal/ui"
	"github.com/law-makers/rednote/internal/utils/output"
	"github.com/law-makers/rednote/pkg/models"
)

// DefaultLimit is the number of notes search returns without --limit
const DefaultLimit = 10

func newSearchCmd() *cobra.Command {
	var (
		limit      int
		ocr        bool
		headless   bool
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "search <keywords...>",
		Short: "Search notes and extract their content",
		Long: `Searches RedNote for the keywords, opens each result and extracts the note's
title, text, image URLs and comments. Results are printed as JSON to stdout
unless --output names a file.

With --ocr the image URLs are replaced by the text tesseract recognizes in the
images.`,
		Example: `  # Top 10 notes for a keyword
  rednote search 咖啡

  # Five notes without showing the browser, saved as Markdown
  rednote search "cold brew" --limit 5 --headless -o notes.md

  # Read the text inside images
  rednote search 探店 --ocr`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := GetApp(cmd)
			if !cmd.Flags().Changed("headless") {
				headless = a.Config.Headless
			}

			query := models.SearchQuery{
				Keywords: strings.Join(args, " "),
				Limit:    limit,
				OCR:      ocr,
			}
			if query.OCR && !a.OCR {
				return fmt.Errorf("--ocr needs tesseract; install it or point --tesseract at the binary")
			}

			if showProgress(a.Config) {
				bar := newProgressBar(cmd.ErrOrStderr(), query.Limit)
				a.Pipeline.SetObserver(func(p scrape.Progress) {
					if p.Err != nil {
						bar.Describe(fmt.Sprintf("Skipped note %d/%d", p.Index+1, p.Candidates))
					} else {
						bar.Describe("Collecting notes")
					}
					_ = bar.Set(p.Collected)
				})
				defer func() {
					a.Pipeline.SetObserver(nil)
					_ = bar.Finish()
				}()
			}

			log.Info().Str("keywords", query.Keywords).Int("limit", query.Limit).Bool("ocr", query.OCR).Msg("Searching notes")
			records, err := a.Searcher.Search(cmd.Context(), query, headless)
			if err != nil {
				if engine.CodeOf(err) == engine.ErrCodeSearchTimeout {
					return fmt.Errorf("%w (if the site asks you to log in, %s)", err, loginHint())
				}
				return err
			}

			if outputPath != "" {
				if err := output.Save(outputPath, query.Keywords, records); err != nil {
					return fmt.Errorf("failed to write output: %w", err)
				}
				log.Info().Str("file", outputPath).Msg("Output saved")
				fmt.Fprintln(cmd.ErrOrStderr(), ui.Success(fmt.Sprintf("✓ Saved %d notes to %s", len(records), outputPath)))
				return nil
			}
			return output.WriteJSON(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", DefaultLimit, "Maximum number of notes to return")
	cmd.Flags().BoolVar(&ocr, "ocr", false, "Replace image URLs with recognized text")
	cmd.Flags().BoolVar(&headless, "headless", config.DefaultHeadless, "Run the browser without a window")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "File path to save output (supports .json, .csv, .md)")
	return cmd
}

func showProgress(cfg *config.Config) bool {
	return !cfg.JSONLog && cfg.LogLevel != "error"
}

func newProgressBar(w io.Writer, limit int) *progressbar.ProgressBar {
	return progressbar.NewOptions(limit,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Collecting notes"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
}
