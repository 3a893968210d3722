package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/vidrag/internal/models"
	"github.com/raphaelgruber/vidrag/internal/service"
	"github.com/raphaelgruber/vidrag/internal/source"
)

var (
	ingestSource   string
	ingestVideoID  string
	ingestTitle    string
	ingestDuration float64
	ingestSearch   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <url|id|file>...",
	Short: "Ingest video transcripts",
	Long: `Fetch transcripts, split them into time segments, tag entities and
topics, embed each segment and store the result.

YouTube URLs and ids fetch captions online. Local .srt, .vtt and .json
files are parsed directly. All inputs run as one task; the first video
that cannot be stored fails the task, earlier videos stay stored.

Re-ingesting a video replaces its segments.

Examples:
  vidrag ingest https://www.youtube.com/watch?v=dQw4w9WgXcQ
  vidrag ingest talk.srt --video-id launch-2024 --title "Launch keynote"
  vidrag ingest a.vtt b.vtt c.vtt
  VIDRAG_STORE=memory vidrag ingest talk.srt --search "reusable rockets"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "source kind (youtube, file); detected when empty")
	ingestCmd.Flags().StringVar(&ingestVideoID, "video-id", "", "video id for a single input")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "video title for a single input")
	ingestCmd.Flags().Float64Var(&ingestDuration, "duration", 0, "video duration in seconds for a single input")
	ingestCmd.Flags().StringVar(&ingestSearch, "search", "", "run a search after ingestion")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) > 1 && (ingestVideoID != "" || ingestTitle != "" || ingestDuration > 0) {
		return fmt.Errorf("--video-id, --title and --duration need a single input")
	}

	var kind source.Kind
	if ingestSource != "" {
		k, err := source.ParseKind(ingestSource)
		if err != nil {
			return err
		}
		kind = k
	}

	reqs := make([]service.IngestRequest, 0, len(args))
	for _, ref := range args {
		t, err := app.sources.Fetch(ctx, kind, ref)
		if err != nil {
			return err
		}
		applyOverrides(&t)
		reqs = append(reqs, service.IngestRequest{
			Transcript: t,
			Metadata:   map[string]any{"ref": ref},
		})
	}

	taskID, err := app.pipeline.IngestBatch(ctx, reqs, map[string]any{"refs": args})
	if err != nil {
		return fmt.Errorf("start ingestion: %w", err)
	}

	interactive := format == formatText && term.IsTerminal(int(os.Stdout.Fd()))
	if interactive {
		err = RunTaskProgress(app.registry, taskID, len(reqs))
		if errors.Is(err, errDetached) {
			fmt.Fprintln(os.Stderr, "Waiting for the task to finish, press Ctrl+C again to abort.")
			_, err = waitForTask(ctx, app.registry, taskID, nil)
		}
	} else {
		_, err = waitForTask(ctx, app.registry, taskID, func(t models.Task) {
			if t.Progress != "" {
				fmt.Fprintf(os.Stderr, "[%s] %s\n", t.Status, t.Progress)
			}
		})
	}
	if err != nil {
		return fmt.Errorf("task %s: %w", taskID, err)
	}

	result, _ := app.pipeline.Result(taskID)
	if ok, err := writeStructured(out, format, map[string]any{"task_id": taskID, "result": result}); ok {
		if err != nil {
			return err
		}
	} else if !interactive {
		fmt.Fprintf(out, "Task %s completed\n%s\n", taskID, result)
	}

	if ingestSearch != "" {
		results, err := app.search.Search(ctx, service.SearchQuery{Query: ingestSearch})
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		if format == formatText {
			fmt.Fprintln(out)
		}
		if err := printResults(out, format, results); err != nil {
			return err
		}
	}

	if verbose && format == formatText {
		printRuntimeStats(out, app.metrics.Snapshot())
	}
	return nil
}

func applyOverrides(t *models.Transcript) {
	if ingestVideoID != "" {
		t.VideoID = ingestVideoID
	}
	if ingestTitle != "" {
		t.Title = ingestTitle
	}
	if ingestDuration > 0 {
		t.Duration = ingestDuration
	}
}
