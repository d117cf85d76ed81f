package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fhirchat/relay/src/relayclient"
)

func chatCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the FHIR assistant from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(serverURL)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8000", "relay server base URL")
	return cmd
}

func runChat(serverURL string) error {
	renderer := newConsoleRenderer(os.Stdout)

	client, err := relayclient.New(serverURL, renderer)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Non-fatal; the renderer already shows the failure inline.
	_ = client.LoadTools(ctx)

	go client.Run(ctx)

	fmt.Println(strings.Repeat("=", 70))
	fmt.Println("Chat Interface with Aidbox MCP Tools")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Println("Type 'quit' or 'exit' to end the conversation")
	fmt.Println("The assistant has access to FHIR tools from Aidbox")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			fmt.Println("\nGoodbye!")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch strings.ToLower(line) {
		case "quit", "exit", "q":
			fmt.Println("Goodbye!")
			return nil
		case "":
			continue
		}

		if !client.SendMessage(line) {
			fmt.Println("[Not connected; message dropped]")
		}
	}
}
