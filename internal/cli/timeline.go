package cli

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var timelineCmd = &cobra.Command{
	Use:   "timeline <video-id>",
	Short: "Show every segment of a video in order",
	Long: `Show the segments of one video ordered by start time, with the
entities and topics found in each.

Examples:
  vidrag timeline dQw4w9WgXcQ
  vidrag timeline launch-talk -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		results, err := app.search.VideoTimeline(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("timeline: %w", err)
		}
		return printResults(cmd.OutOrStdout(), format, results)
	},
}

var segmentCmd = &cobra.Command{
	Use:   "segment <segment-id>",
	Short: "Show one segment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := app.search.GetSegment(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get segment: %w", err)
		}
		w := cmd.OutOrStdout()
		if ok, err := writeStructured(w, format, r); ok {
			return err
		}
		printResult(w, 1, r)
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <video-id>",
	Short: "Summarize one video",
	Long: `Show a video's duration, segment count and the distinct entities and
topics found in it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := app.search.VideoInfo(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("video info: %w", err)
		}
		w := cmd.OutOrStdout()
		if ok, err := writeStructured(w, format, info); ok {
			return err
		}
		fmt.Fprintf(w, "%s\n", lo.CoalesceOrEmpty(info.Title, info.VideoID))
		fmt.Fprintf(w, "Video:     %s\n", info.VideoID)
		fmt.Fprintf(w, "Duration:  %s\n", formatClock(info.Duration))
		fmt.Fprintf(w, "Segments:  %d\n", info.Segments)
		if info.Degraded > 0 {
			fmt.Fprintf(w, "Degraded:  %d\n", info.Degraded)
		}
		fmt.Fprintf(w, "Entities:  %s\n", strings.Join(info.Entities, ", "))
		fmt.Fprintf(w, "Topics:    %s\n", strings.Join(info.Topics, ", "))
		if info.URL != "" {
			fmt.Fprintf(w, "URL:       %s\n", info.URL)
		}
		return nil
	},
}
