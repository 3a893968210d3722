package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/vidrag/internal/metrics"
	"github.com/raphaelgruber/vidrag/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus statistics",
	Long: `Show how many videos, segments, entities and topics are stored and
how many segments are missing an embedding.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := app.search.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		w := cmd.OutOrStdout()
		if ok, err := writeStructured(w, format, st); ok {
			return err
		}
		printStoreStats(w, st)
		return nil
	},
}

func printStoreStats(w io.Writer, st store.Stats) {
	fmt.Fprintf(w, "Corpus\n")
	fmt.Fprintf(w, "══════════════════════\n")
	fmt.Fprintf(w, "Videos:    %d\n", st.Videos)
	fmt.Fprintf(w, "Segments:  %d\n", st.Segments)
	fmt.Fprintf(w, "Entities:  %d\n", st.Entities)
	fmt.Fprintf(w, "Topics:    %d\n", st.Topics)
	if st.Degraded > 0 {
		fmt.Fprintf(w, "Degraded:  %d (re-ingest to embed)\n", st.Degraded)
	}
}

// printRuntimeStats renders the per-operation timings gathered during this run.
func printRuntimeStats(w io.Writer, snap metrics.Snapshot) {
	fmt.Fprintf(w, "\nRuntime (%.1fs)\n", snap.UptimeSeconds)
	fmt.Fprintf(w, "══════════════════════\n")
	rows := []struct {
		name string
		op   *metrics.OperationSnapshot
	}{
		{"ingest video", snap.IngestVideo},
		{"extraction", snap.Extraction},
		{"embedding", snap.Embedding},
		{"store upsert", snap.StoreUpsert},
		{"store search", snap.StoreSearch},
		{"search", snap.Search},
	}
	for _, r := range rows {
		if r.op == nil {
			continue
		}
		fmt.Fprintf(w, "%-13s %5d calls  %4d failed  avg %7.1fms  max %6dms\n",
			r.name, r.op.Count, r.op.Failures, r.op.AvgTimeMs, r.op.MaxTimeMs)
	}
}
