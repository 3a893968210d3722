package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <video-id>...",
	Short: "Delete stored videos",
	Long: `Delete every stored segment of the given videos.

Requires confirmation unless --force is used.

Examples:
  vidrag delete dQw4w9WgXcQ
  vidrag delete launch-talk old-demo --force`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if !deleteForce {
		fmt.Fprintf(out, "About to delete %d video(s): %s\n", len(args), strings.Join(args, ", "))
		fmt.Fprint(out, "\nContinue? [y/N]: ")

		answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && answer == "" {
			return fmt.Errorf("read input: %w", err)
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	for _, id := range args {
		n, err := app.pipeline.DeleteVideo(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %s (%d segments)\n", id, n)
	}
	return nil
}
