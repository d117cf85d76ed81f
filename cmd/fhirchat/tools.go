package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fhirchat/relay/src/mcp"
)

func toolsCmd() *cobra.Command {
	var serverURL string
	var timeout int

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Explore the MCP gateway's tool catalog",
	}
	cmd.PersistentFlags().StringVar(&serverURL, "mcp-url", "http://localhost:8080/sse", "MCP server SSE endpoint")
	cmd.PersistentFlags().IntVar(&timeout, "timeout", 30, "connection timeout in seconds")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMCP(serverURL, timeout, listTools)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Show detailed information for one tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMCP(serverURL, timeout, func(ctx context.Context, client *mcp.Client) error {
				return showTool(ctx, client, args[0])
			})
		},
	})
	return cmd
}

func withMCP(serverURL string, timeout int, fn func(context.Context, *mcp.Client) error) error {
	client := mcp.NewClient(&mcp.Config{
		ServerURL: serverURL,
		Timeout:   time.Duration(timeout) * time.Second,
	}, zerolog.New(os.Stderr).Level(zerolog.WarnLevel))

	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to connect to MCP server:", err)
		fmt.Fprintln(os.Stderr, "Make sure Aidbox is running and MCP endpoints are configured")
		return err
	}
	defer client.Close()

	return fn(ctx, client)
}

func listTools(ctx context.Context, client *mcp.Client) error {
	tools, err := client.ListTools(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, tool := range tools {
		desc := tool.Description
		if desc == "" {
			desc = "N/A"
		}
		fmt.Fprintf(w, "%s\t%s\n", tool.Name, desc)
	}
	return w.Flush()
}

func showTool(ctx context.Context, client *mcp.Client, name string) error {
	tools, err := client.ListTools(ctx)
	if err != nil {
		return err
	}

	for _, tool := range tools {
		if tool.Name == name {
			out, err := json.MarshalIndent(tool, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}
	}
	fmt.Printf("Tool %q not found\n", name)
	return nil
}
