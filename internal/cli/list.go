package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/snapknow/internal/models"
)

var (
	listCategory    string
	listSubcategory string
	listTopic       string
	listStatus      string
	listPage        int
	listPageSize    int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge records",
	Long: `List stored knowledge records with optional filtering, newest first.

Examples:
  snapknow list
  snapknow list --category Mathematics
  snapknow list --status failed
  snapknow list --category Mathematics --subcategory geometry --page 2`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listCategory, "category", "c", "", "filter by category")
	listCmd.Flags().StringVarP(&listSubcategory, "subcategory", "s", "", "filter by subcategory")
	listCmd.Flags().StringVarP(&listTopic, "topic", "t", "", "filter by topic")
	listCmd.Flags().StringVarP(&listStatus, "status", "S", "", "filter by status (pending, processing, completed, failed)")
	listCmd.Flags().IntVarP(&listPage, "page", "p", 1, "page number")
	listCmd.Flags().IntVarP(&listPageSize, "page-size", "n", 20, "records per page")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	filter := models.ListFilter{
		Category:    listCategory,
		Subcategory: listSubcategory,
		Topic:       listTopic,
		Status:      models.Status(listStatus),
	}
	page := models.Page{Number: listPage, Size: listPageSize}

	records, total, err := dbClient.ListKnowledge(ctx, filter, page)
	if err != nil {
		return fmt.Errorf("list knowledge: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No knowledge records found.")
		return nil
	}

	fmt.Printf("Knowledge records (%d total, page %d):\n\n", total, page.Number)
	for _, record := range records {
		title := record.Title
		if title == "" {
			title = record.Image
		}
		fmt.Printf("- %s [%s]\n", title, defaultTheme.renderStatus(record.Status))
		fmt.Printf("  %s\n", defaultTheme.hintStyle().Render(models.MustRecordIDString(record.ID)))
		if record.Category != "" {
			fmt.Printf("  %s\n", defaultTheme.accentStyle().Render(
				fmt.Sprintf("%s > %s > %s", record.Category, record.Subcategory, record.Topic)))
		}
		if verbose {
			if record.Paraphrased != nil && record.Paraphrased.Summary != "" {
				fmt.Printf("  %s\n", record.Paraphrased.Summary)
			}
			if record.LastError != nil {
				fmt.Printf("  %s\n", defaultTheme.errorStyle().Render("error: "+*record.LastError))
			}
		}
	}

	return nil
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one knowledge record in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	record, err := dbClient.GetKnowledge(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get knowledge: %w", err)
	}

	title := record.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Printf("%s [%s]\n", title, defaultTheme.renderStatus(record.Status))
	fmt.Printf("  ID: %s\n", models.MustRecordIDString(record.ID))
	fmt.Printf("  Image: %s\n", record.Image)
	if record.URL != "" {
		fmt.Printf("  URL: %s\n", record.URL)
	}
	if record.Category != "" {
		fmt.Printf("  Taxonomy: %s > %s > %s\n", record.Category, record.Subcategory, record.Topic)
	}
	if record.RetryCount > 0 {
		fmt.Printf("  Retries: %d\n", record.RetryCount)
	}
	if record.LastError != nil {
		fmt.Printf("  Error: %s\n", defaultTheme.errorStyle().Render(*record.LastError))
	}
	if record.Comments != nil {
		fmt.Printf("  Comments: %s\n", *record.Comments)
	}

	if record.Paraphrased != nil {
		fmt.Println("\nSummary:")
		fmt.Printf("  %s\n", record.Paraphrased.Summary)
		for _, d := range record.Paraphrased.Details {
			fmt.Printf("  - %s: %s\n", d.Concept, d.ExpandedInformation)
		}
	}
	if record.RawData != "" {
		fmt.Println("\nTranscription:")
		fmt.Printf("  %s\n", record.RawData)
	}

	return nil
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a knowledge record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := dbClient.DeleteKnowledge(context.Background(), args[0]); err != nil {
			return fmt.Errorf("delete knowledge: %w", err)
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}
