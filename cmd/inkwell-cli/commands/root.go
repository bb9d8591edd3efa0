// Package commands implements the inkwell CLI.
package commands

import (
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	ownerID   string
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "Inkwell - enhance your notes from the command line",
	Long: `Inkwell submits raw notes, scanned pages or PDFs to the enhancement
service and tracks the job until enhanced notes, flashcards and export
artifacts are ready.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		if noColor {
			color.NoColor = true
		}
		if serverURL == "" {
			serverURL = os.Getenv("INKWELL_SERVER")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8090"
		}
		if ownerID == "" {
			ownerID = os.Getenv("INKWELL_OWNER")
		}
		if ownerID == "" {
			ownerID = "cli-user"
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "API server URL")
	rootCmd.PersistentFlags().StringVarP(&ownerID, "owner", "o", "", "owner identity sent with requests")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
