package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the current state of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := newClient().getJob(args[0])
		if err != nil {
			return err
		}
		printJob(job)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Watch a job's progress until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}

func statusColor(status string) *color.Color {
	switch status {
	case "completed":
		return color.New(color.FgGreen)
	case "error":
		return color.New(color.FgRed)
	case "cancelled":
		return color.New(color.FgYellow)
	case "processing":
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgWhite)
	}
}

func printJob(job *jobView) {
	title := "(untitled)"
	if job.Title != nil && *job.Title != "" {
		title = *job.Title
	}
	fmt.Printf("Job:      %s\n", job.ID)
	fmt.Printf("Title:    %s\n", title)
	fmt.Printf("Input:    %s\n", job.InputType)
	fmt.Printf("Status:   %s\n", statusColor(job.Status).Sprint(job.Status))
	fmt.Printf("Progress: %d%% - %s\n", job.Progress, job.ProgressMessage)
}

func runWatch(cmd *cobra.Command, args []string) error {
	client := newClient()
	jobID := args[0]

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("processing"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
	)

	for {
		job, err := client.getJob(jobID)
		if err != nil {
			return err
		}

		bar.Describe(job.ProgressMessage)
		_ = bar.Set(job.Progress)

		switch job.Status {
		case "completed":
			_ = bar.Finish()
			fmt.Println()
			color.Green("Job completed")
			return nil
		case "error":
			fmt.Println()
			return fmt.Errorf("job failed: %s", job.ProgressMessage)
		case "cancelled":
			fmt.Println()
			color.Yellow("Job was cancelled")
			return nil
		}

		time.Sleep(2 * time.Second)
	}
}
