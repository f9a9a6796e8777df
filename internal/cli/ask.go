package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/snapknow/internal/models"
	"github.com/raphaelgruber/snapknow/internal/service"
)

var (
	askThreshold float64
	askTopK      int
	askCategory  string
	askNoStream  bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question over the stored knowledge",
	Long: `Ask a natural-language question. The question is embedded, matched
against stored knowledge by vector similarity, and answered by an LLM using
only the retrieved records as context.

Examples:
  snapknow ask "what is the pythagorean theorem?"
  snapknow ask --category Mathematics --top-k 5 "summarize my geometry notes"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().Float64Var(&askThreshold, "threshold", 0, "minimum similarity (0 uses the configured default)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "max records to retrieve (0 uses the configured default)")
	askCmd.Flags().StringVarP(&askCategory, "category", "c", "", "restrict retrieval to a category")
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "print the answer in one piece")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	query := strings.Join(args, " ")

	r, err := getRetrieval()
	if err != nil {
		return err
	}

	opts := service.QueryOptions{Filter: models.ListFilter{Category: askCategory}}
	if askThreshold > 0 {
		opts.Threshold = &askThreshold
	}
	if askTopK > 0 {
		opts.TopK = &askTopK
	}

	if askNoStream {
		answer, hits, err := r.Answer(ctx, query, opts)
		if err != nil {
			return fmt.Errorf("answer: %w", err)
		}
		printSources(service.SourceRefs(hits))
		fmt.Println(answer)
		return nil
	}

	for ev := range r.Stream(ctx, query, opts) {
		switch ev.Type {
		case service.EventContext:
			printSources(ev.Sources)
		case service.EventToken:
			fmt.Print(ev.Token)
		case service.EventDone:
			fmt.Println()
		case service.EventError:
			return fmt.Errorf("query failed: %s", ev.Error)
		}
	}
	return nil
}

func printSources(sources []service.SourceRef) {
	if len(sources) == 0 {
		fmt.Println(defaultTheme.hintStyle().Render("No matching knowledge found."))
		return
	}
	fmt.Println(defaultTheme.hintStyle().Render(fmt.Sprintf("Sources (%d):", len(sources))))
	for _, src := range sources {
		fmt.Printf("  - %s %s\n", src.Title, defaultTheme.hintStyle().Render(
			fmt.Sprintf("(%s > %s > %s, %.2f, %s)", src.Category, src.Subcategory, src.Topic, src.Similarity, src.Image)))
	}
	fmt.Println()
}
