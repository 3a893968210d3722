package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/vidrag/internal/graph"
)

var entitiesLimit int

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List known entities by number of mentions",
	Long: `List every entity found in the stored segments with the number of
segments and videos that mention it.

Examples:
  vidrag entities
  vidrag entities -n 10 -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entities, err := app.graph.Entities(cmd.Context())
		if err != nil {
			return fmt.Errorf("list entities: %w", err)
		}
		if entitiesLimit > 0 && len(entities) > entitiesLimit {
			entities = entities[:entitiesLimit]
		}
		w := cmd.OutOrStdout()
		if ok, err := writeStructured(w, format, entities); ok {
			return err
		}
		printEntities(w, entities)
		return nil
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the segment, entity and topic graph",
	Long: `Export every graph node and edge. Segments point at the entities they
mention and the topics they cover.

Examples:
  vidrag graph
  vidrag graph -o json > graph.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := app.graph.Graph(cmd.Context())
		if err != nil {
			return fmt.Errorf("export graph: %w", err)
		}
		w := cmd.OutOrStdout()
		if ok, err := writeStructured(w, format, g); ok {
			return err
		}
		fmt.Fprintf(w, "%d nodes, %d edges\n", g.TotalNodes, g.TotalEdges)
		for _, e := range g.Edges {
			fmt.Fprintf(w, "  %s -%s-> %s\n", e.From, e.Label, e.To)
		}
		return nil
	},
}

func init() {
	entitiesCmd.Flags().IntVarP(&entitiesLimit, "limit", "n", 0, "max entities (0 = all)")
}

func printEntities(w io.Writer, entities []graph.EntityCount) {
	if len(entities) == 0 {
		fmt.Fprintln(w, "No entities found.")
		return
	}
	for _, e := range entities {
		fmt.Fprintf(w, "%-30s %4d segments  %3d videos\n", e.Name, e.Segments, e.Videos)
	}
}
