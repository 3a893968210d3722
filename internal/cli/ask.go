package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/vidrag/internal/service"
)

var askLimit int

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the stored transcripts",
	Long: `Answer a question with the configured LLM.

The most similar segments are retrieved first and given to the model as
numbered context. Requires VIDRAG_LLM_PROVIDER.

Examples:
  vidrag ask "Why does the booster land on a ship?"
  vidrag ask "What did they say about battery costs?" -n 4 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ans, err := app.answers.Ask(cmd.Context(), args[0], askLimit)
		if err != nil {
			return fmt.Errorf("ask: %w", err)
		}
		w := cmd.OutOrStdout()
		if ok, err := writeStructured(w, format, ans); ok {
			return err
		}
		fmt.Fprintf(w, "%s\n", ans.Answer)
		if len(ans.Segments) == 0 {
			return nil
		}
		fmt.Fprintf(w, "\nSources:\n")
		for i, r := range ans.Segments {
			fmt.Fprintf(w, "  %d. %s [%s-%s]", i+1, r.VideoID, formatClock(r.StartTime), formatClock(r.EndTime))
			if r.URL != "" {
				fmt.Fprintf(w, "  %s", r.URL)
			}
			fmt.Fprintln(w)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().IntVarP(&askLimit, "limit", "n", service.DefaultAskSegments, "segments given to the model")
}
