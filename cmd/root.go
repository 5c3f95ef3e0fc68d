package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ignis",
	Short: "Face-recognition attendance engine for classrooms",
	Long: `Ignis marks classroom attendance from photos. Lecturers upload a class
photo or camera frame, the engine detects faces, matches them against
enrolled student embeddings, and records attendance for the active session.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
