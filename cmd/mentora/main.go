package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "mentora",
	Short: "Persona tutoring daemon: knowledge retrieval, sessions and reviews",
	Long: `mentora runs the tutoring backend: persona knowledge bases built from
uploaded materials and reference links, tutoring session lifecycle with
flat-fee billing, and post-session reviews. The daemon exposes an HTTP
API and an MCP server over stdio.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mentora version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mentora version %s\n", version)
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd, versionCmd)
	rootCmd.AddCommand(sessionCmd, materialCmd, linkCmd, reviewCmd, resolveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
