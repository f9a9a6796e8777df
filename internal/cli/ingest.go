package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/snapknow/internal/service"
	"github.com/raphaelgruber/snapknow/internal/source"
)

var (
	ingestFolder    string
	ingestExtractor string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [image|url]...",
	Short: "Ingest images into the knowledge base",
	Long: `Ingest one or more images: local files, HTTP(S) URLs, or file-service
references. Each image is transcribed, classified, embedded, and stored.

Images that were already ingested successfully are skipped; images whose
previous ingestion did not complete are reprocessed from scratch.

Examples:
  snapknow ingest notes.jpg slides.png
  snapknow ingest https://example.com/whiteboard.jpg
  snapknow ingest --folder ./scans`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestFolder, "folder", "f", "", "ingest every image in a folder")
	ingestCmd.Flags().StringVarP(&ingestExtractor, "extractor", "e", "", "vision extractor to use (web, local)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	locators := args
	if ingestFolder != "" {
		resolver := source.NewResolver(cfg.FileServiceURL, cfg.MaxDownloadSize, nil)
		paths, err := resolver.FromFolder(ingestFolder)
		if err != nil {
			return err
		}
		locators = append(locators, paths...)
	}
	if len(locators) == 0 {
		return fmt.Errorf("nothing to ingest: pass images or --folder")
	}

	d, err := getDispatcher()
	if err != nil {
		return err
	}

	job, items, err := d.Ingest(ctx, locators, ingestExtractor)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	for _, item := range items {
		if item.Deduplicated {
			fmt.Printf("- %s %s (%s)\n", item.Locator,
				defaultTheme.hintStyle().Render("already ingested"), item.ID)
		} else {
			fmt.Printf("- %s %s (%s)\n", item.Locator,
				defaultTheme.statusStyle().Render("queued"), item.ID)
		}
	}

	snap := waitForJob(job)
	fmt.Println()
	if snap.Failed > 0 {
		fmt.Println(defaultTheme.errorStyle().Render(
			fmt.Sprintf("✗ %d of %d failed", snap.Failed, snap.Total)))
		for _, e := range snap.Errors {
			fmt.Printf("  - %s\n", e)
		}
		return fmt.Errorf("%d images failed", snap.Failed)
	}
	fmt.Println(defaultTheme.successStyle().Render(
		fmt.Sprintf("✓ %d images ingested", snap.Completed)))
	return nil
}

// waitForJob blocks until the job finishes, printing progress on a line.
func waitForJob(job *service.Job) service.Job {
	for {
		snap := job.Snapshot()
		if snap.Status == service.JobStatusCompleted || snap.Status == service.JobStatusFailed {
			return snap
		}
		if snap.Total > 0 {
			fmt.Printf("\rProcessing %d/%d...", snap.Progress, snap.Total)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
