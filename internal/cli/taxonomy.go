package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/snapknow/internal/taxonomy"
)

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Show the knowledge taxonomy",
	Long: `Print the current category > subcategory > topic tree. The taxonomy
grows as new images introduce labels the vision model flags as new.

Subcommands:
  seed <file>  Seed an empty taxonomy from a YAML file`,
	RunE: runTaxonomy,
}

var taxonomySeedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Seed an empty taxonomy from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaxonomySeed,
}

func init() {
	taxonomyCmd.AddCommand(taxonomySeedCmd)
}

func runTaxonomy(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	tax, err := dbClient.GetTaxonomy(ctx)
	if err != nil {
		return fmt.Errorf("get taxonomy: %w", err)
	}

	if len(tax.Categories) == 0 {
		fmt.Println("Taxonomy is empty. Ingest images or run 'snapknow taxonomy seed'.")
		return nil
	}

	for _, cat := range tax.Categories {
		fmt.Println(defaultTheme.accentStyle().Render(cat.Name))
		for _, sub := range cat.Subcategories {
			fmt.Printf("  %s\n", sub.Name)
			for _, topic := range sub.Topics {
				fmt.Printf("    - %s\n", topic)
			}
		}
	}
	return nil
}

func runTaxonomySeed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	provider := taxonomy.NewProvider(dbClient, nil)
	if err := provider.Seed(ctx, args[0]); err != nil {
		return fmt.Errorf("seed taxonomy: %w", err)
	}

	tax, err := dbClient.GetTaxonomy(ctx)
	if err != nil {
		return fmt.Errorf("get taxonomy: %w", err)
	}
	fmt.Printf("Taxonomy has %d categories.\n", len(tax.Categories))
	return nil
}
