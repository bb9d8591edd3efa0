package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	exportOut   string
	exportForce bool
)

var exportCmd = &cobra.Command{
	Use:   "export <job-id> <pdf|docx|txt>",
	Short: "Download an export artifact",
	Long: `Download the given export format for a completed job. With --force the
artifact is regenerated first even if a fresh one exists.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		jobID, format := args[0], args[1]

		if exportForce {
			if err := client.regenerateExport(jobID, format, true); err != nil {
				return err
			}
		}

		out := exportOut
		if out == "" {
			out = fmt.Sprintf("notes-%s.%s", jobID[:8], format)
		}
		if err := client.downloadExport(jobID, format, out); err != nil {
			return err
		}
		color.Green("Saved %s", out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "O", "", "output file path")
	exportCmd.Flags().BoolVar(&exportForce, "force", false, "regenerate before downloading")
	rootCmd.AddCommand(exportCmd)
}
