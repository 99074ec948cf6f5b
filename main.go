package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	settingsFile string
	boardName    string
	debugMode    bool
)

var rootCmd = &cobra.Command{
	Use:   "ojs-wekan-sync",
	Short: "Mirror OJS submissions and issues onto a Wekan board",
	Long: `Synchronizes the editorial workflow state of an OJS installation into a
Wekan kanban board: issues and submissions become cards, workflow stages
become lists, and submission cards are linked to their issue card.

Credentials are read from the environment (.env and .secrets.env are
loaded when present); board layout and checklist templates come from the
settings file.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if debugMode {
			SetDebugMode(true)
		}

		creds, err := LoadCredentials()
		if err != nil {
			log.Fatalf("Failed to load credentials: %v", err)
		}

		if err := ensureSettingsExists(settingsFile); err != nil {
			log.Fatalf("Failed to write default settings: %v", err)
		}
		settings, err := LoadSettings(settingsFile)
		if err != nil {
			log.Fatalf("Failed to load settings: %v", err)
		}
		if boardName != "" {
			settings.Board = boardName
		}

		ojs := NewOJSClient(creds.OJSURL, creds.OJSToken, settings.MaxConcurrent)
		wekan := NewWekanClient(creds.WekanURL, creds.WekanUsername, creds.WekanPassword)

		sync := NewSynchronizer(settings, ojs, wekan, creds.OJSURL)
		result, err := sync.Run()
		if err != nil {
			log.Fatalf("Synchronization failed: %v", err)
		}

		log.Printf("✓ Synchronization complete: %d created, %d updated, %d skipped, %d linked",
			result.Created, result.Updated, result.Skipped, result.Linked)
	},
}

func init() {
	rootCmd.Flags().StringVar(&settingsFile, "settings", defaultSettingsPath, "Path to the settings file")
	rootCmd.Flags().StringVar(&boardName, "board", "", "Override the target board name")
	rootCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
