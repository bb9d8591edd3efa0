package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	submitTitle      string
	submitFile       []string
	submitBullets    bool
	submitHeaders    bool
	submitExpand     bool
	submitSummarize  bool
	submitTopics     []string
	submitStyle      string
	submitFont       string
	submitCustom     string
	submitFlashcards bool
	submitCardCount  int
	submitWait       bool
)

var submitCmd = &cobra.Command{
	Use:   "submit [text]",
	Short: "Submit notes for enhancement",
	Long: `Submit raw note text, or image/PDF files with --file, as a new
enhancement job. With --wait the command polls until the job finishes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitTitle, "title", "t", "", "job title")
	submitCmd.Flags().StringSliceVarP(&submitFile, "file", "f", nil, "image or PDF file to submit (repeatable)")
	submitCmd.Flags().BoolVar(&submitBullets, "bullets", false, "convert prose to bullet points")
	submitCmd.Flags().BoolVar(&submitHeaders, "headers", false, "organize content under headers")
	submitCmd.Flags().BoolVar(&submitExpand, "expand", false, "expand on key concepts")
	submitCmd.Flags().BoolVar(&submitSummarize, "summarize", false, "prepend a summary")
	submitCmd.Flags().StringSliceVar(&submitTopics, "topic", nil, "focus topic (repeatable)")
	submitCmd.Flags().StringVar(&submitStyle, "style", "", "latex style: academic, personal or minimalist")
	submitCmd.Flags().StringVar(&submitFont, "font", "", "font preference for PDF export")
	submitCmd.Flags().StringVar(&submitCustom, "custom", "", "free-form enhancement instructions")
	submitCmd.Flags().BoolVar(&submitFlashcards, "flashcards", false, "generate flashcards")
	submitCmd.Flags().IntVar(&submitCardCount, "cards", 0, "requested flashcard count")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "wait for the job to finish")
	rootCmd.AddCommand(submitCmd)
}

func buildSettings() map[string]interface{} {
	settings := map[string]interface{}{
		"add_bullet_points":   submitBullets,
		"add_headers":         submitHeaders,
		"expand":              submitExpand,
		"summarize":           submitSummarize,
		"generate_flashcards": submitFlashcards,
	}
	if len(submitTopics) > 0 {
		settings["focus_topics"] = submitTopics
	}
	if submitStyle != "" {
		settings["latex_style"] = submitStyle
	}
	if submitFont != "" {
		settings["font_preference"] = submitFont
	}
	if submitCustom != "" {
		settings["custom_specifications"] = submitCustom
	}
	if submitCardCount > 0 {
		settings["flashcard_count"] = submitCardCount
	}
	return settings
}

func runSubmit(cmd *cobra.Command, args []string) error {
	client := newClient()
	settings := buildSettings()

	var (
		job *jobView
		err error
	)
	switch {
	case len(submitFile) > 0:
		job, err = client.submitFiles(submitTitle, submitFile, settings)
	case len(args) == 1:
		text := args[0]
		if data, readErr := os.ReadFile(text); readErr == nil {
			text = string(data)
		}
		job, err = client.submitText(submitTitle, text, settings)
	default:
		return fmt.Errorf("provide note text, a text file path, or --file")
	}
	if err != nil {
		return err
	}

	fmt.Printf("Job %s submitted\n", color.CyanString(job.ID))
	if !submitWait {
		fmt.Printf("Track it with: inkwell watch %s\n", job.ID)
		return nil
	}

	spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
	spin.Suffix = " waiting..."
	spin.Start()
	defer spin.Stop()

	for {
		time.Sleep(2 * time.Second)
		job, err = client.getJob(job.ID)
		if err != nil {
			return err
		}
		spin.Suffix = fmt.Sprintf(" %s (%d%%)", job.ProgressMessage, job.Progress)

		switch job.Status {
		case "completed":
			spin.Stop()
			color.Green("Job completed")
			fmt.Printf("Fetch results with: inkwell result %s\n", job.ID)
			return nil
		case "error":
			spin.Stop()
			return fmt.Errorf("job failed: %s", job.ProgressMessage)
		case "cancelled":
			spin.Stop()
			color.Yellow("Job was cancelled")
			return nil
		}
	}
}
