package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/vidrag/internal/service"
)

var (
	searchVideos []string
	searchEntity string
	searchTopic  string
	searchFrom   string
	searchTo     string
	searchLimit  int
	searchQuery  string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Find video segments by meaning, entity, topic or time",
	Long: `Search stored segments.

With a query the segments are ranked by semantic similarity. Without one,
matching segments are listed in timeline order. Filters combine with AND.

Examples:
  vidrag search "reusable rockets"
  vidrag search "launch window" --entity "Elon Musk"
  vidrag search --topic space --video dQw4w9WgXcQ --from 1:00 --to 5:00
  vidrag search "battery costs" -n 5 -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

var entityCmd = &cobra.Command{
	Use:   "entity <name>",
	Short: "List segments that mention an entity",
	Long: `List segments tagged with an entity (case-insensitive).

Examples:
  vidrag entity "Elon Musk"
  vidrag entity Tesla --query "factory output" --from 10:00`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTagSearch(cmd, args[0], app.search.SearchByEntity)
	},
}

var topicCmd = &cobra.Command{
	Use:   "topic <name>",
	Short: "List segments about a topic",
	Long: `List segments tagged with a topic (case-insensitive).

Examples:
  vidrag topic space
  vidrag topic "electric vehicles" --video dQw4w9WgXcQ`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTagSearch(cmd, args[0], app.search.SearchByTopic)
	},
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, entityCmd, topicCmd} {
		c.Flags().StringSliceVar(&searchVideos, "video", nil, "restrict to video ids")
		c.Flags().StringVar(&searchFrom, "from", "", "range start (seconds, m:ss or h:mm:ss)")
		c.Flags().StringVar(&searchTo, "to", "", "range end (seconds, m:ss or h:mm:ss)")
		c.Flags().IntVarP(&searchLimit, "limit", "n", 0, "max results (default from VIDRAG_MAX_RESULTS)")
	}
	searchCmd.Flags().StringVarP(&searchEntity, "entity", "e", "", "only segments mentioning this entity")
	searchCmd.Flags().StringVarP(&searchTopic, "topic", "t", "", "only segments about this topic")
	entityCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "rank by similarity to this text")
	topicCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "rank by similarity to this text")
}

func runSearch(cmd *cobra.Command, args []string) error {
	tr, err := timeRangeFlags(searchFrom, searchTo)
	if err != nil {
		return err
	}

	q := service.SearchQuery{
		VideoIDs:   searchVideos,
		Entity:     searchEntity,
		Topic:      searchTopic,
		TimeRange:  tr,
		MaxResults: searchLimit,
	}
	if len(args) == 1 {
		q.Query = args[0]
	}
	if strings.TrimSpace(q.Query) == "" && q.Entity == "" && q.Topic == "" && len(q.VideoIDs) == 0 && tr == nil {
		return fmt.Errorf("give a query or at least one filter")
	}

	results, err := app.search.Search(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	return printResults(cmd.OutOrStdout(), format, results)
}

type tagSearchFunc func(ctx context.Context, name string, opts service.EntitySearchOptions) ([]service.SearchResult, error)

func runTagSearch(cmd *cobra.Command, name string, search tagSearchFunc) error {
	tr, err := timeRangeFlags(searchFrom, searchTo)
	if err != nil {
		return err
	}
	results, err := search(cmd.Context(), name, service.EntitySearchOptions{
		Query:      searchQuery,
		VideoIDs:   searchVideos,
		TimeRange:  tr,
		MaxResults: searchLimit,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	return printResults(cmd.OutOrStdout(), format, results)
}
