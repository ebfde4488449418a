// Package main implements the blueprintd CLI for generating design documents
// from business requirements.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is the optional YAML config file location.
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "blueprintd",
	Short: "Generate design documents from business requirements",
	Long: `blueprintd turns a business requirements document into an implementation
plan, a technical requirements document, high- and low-level Mermaid
architecture diagrams, and an Agile backlog, by orchestrating a generative
backend with quality gates and deterministic fallbacks.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(generateCmd)
}
