package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fhirchat",
		Short: "FHIR chat relay between a browser client, an OpenAI-compatible agent, and an Aidbox MCP gateway",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(toolsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
