package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	retryAllFailed bool
	retryCategory  string
	retryLimit     int
)

var retryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Retry failed ingestions",
	Long: `Retry a failed knowledge record by ID, or every failed record with
--failed. Each retry runs the full pipeline again; retry counts accumulate
on the record.

Examples:
  snapknow retry knowledge:abc123
  snapknow retry --failed
  snapknow retry --failed --category Mathematics`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRetry,
}

func init() {
	retryCmd.Flags().BoolVar(&retryAllFailed, "failed", false, "retry all failed records")
	retryCmd.Flags().StringVarP(&retryCategory, "category", "c", "", "with --failed, restrict to a category")
	retryCmd.Flags().IntVarP(&retryLimit, "limit", "n", 0, "with --failed, max records to retry")
}

func runRetry(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 0 && !retryAllFailed {
		return fmt.Errorf("pass a record id or --failed")
	}

	d, err := getDispatcher()
	if err != nil {
		return err
	}

	if retryAllFailed {
		job, err := d.RetryFailed(ctx, retryCategory, retryLimit)
		if err != nil {
			return fmt.Errorf("retry failed records: %w", err)
		}
		fmt.Printf("Retrying %d records...\n", job.Snapshot().Total)
		snap := waitForJob(job)
		fmt.Println()
		if snap.Failed > 0 {
			fmt.Println(defaultTheme.errorStyle().Render(
				fmt.Sprintf("✗ %d of %d still failing", snap.Failed, snap.Total)))
			for _, e := range snap.Errors {
				fmt.Printf("  - %s\n", e)
			}
			return fmt.Errorf("%d records still failing", snap.Failed)
		}
		fmt.Println(defaultTheme.successStyle().Render(
			fmt.Sprintf("✓ %d records recovered", snap.Completed)))
		return nil
	}

	job, err := d.RetryRecord(ctx, args[0])
	if err != nil {
		return fmt.Errorf("retry record: %w", err)
	}
	snap := waitForJob(job)
	fmt.Println()
	if snap.Failed > 0 {
		fmt.Println(defaultTheme.errorStyle().Render("✗ Retry failed"))
		for _, e := range snap.Errors {
			fmt.Printf("  - %s\n", e)
		}
		return fmt.Errorf("retry failed")
	}
	fmt.Println(defaultTheme.successStyle().Render("✓ Record recovered"))
	return nil
}
