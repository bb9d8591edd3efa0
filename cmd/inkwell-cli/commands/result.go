package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var resultOut string

var resultCmd = &cobra.Command{
	Use:   "result <job-id>",
	Short: "Print or save a completed job's enhanced notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := newClient().getResult(args[0])
		if err != nil {
			return err
		}
		if job.EnhancedText == nil {
			return fmt.Errorf("job has no enhanced text")
		}

		if resultOut != "" {
			if err := os.WriteFile(resultOut, []byte(*job.EnhancedText), 0o644); err != nil {
				return err
			}
			color.Green("Saved enhanced notes to %s", resultOut)
			return nil
		}
		fmt.Println(*job.EnhancedText)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a processing job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().cancel(args[0]); err != nil {
			return err
		}
		color.Yellow("Cancellation requested")
		return nil
	},
}

func init() {
	resultCmd.Flags().StringVarP(&resultOut, "out", "O", "", "write enhanced notes to a file")
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(cancelCmd)
}
