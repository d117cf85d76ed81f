package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fhirchat/relay/config"
	"github.com/fhirchat/relay/src/agent"
	"github.com/fhirchat/relay/src/hub"
	"github.com/fhirchat/relay/src/mcp"
	"github.com/fhirchat/relay/src/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)

	mcpClient := mcp.NewClient(&mcp.Config{
		ServerURL: cfg.MCPServerURL,
		Timeout:   cfg.MCPTimeout(),
	}, logger)

	logger.Info().Str("server_url", cfg.MCPServerURL).Msg("connecting to Aidbox MCP server")
	ctx := context.Background()
	if err := mcpClient.Connect(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to connect to Aidbox MCP server")
		logger.Error().Msg("make sure Aidbox is running and MCP endpoints are configured")
		return err
	}
	defer mcpClient.Close()

	tools, err := mcpClient.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}
	logger.Info().Int("count", len(tools)).Msg("loaded FHIR tools from Aidbox MCP server")
	for _, tool := range tools {
		logger.Info().Str("tool", tool.Name).Str("description", tool.Description).Msg("tool available")
	}

	llm, err := agent.NewLLM(agent.LLMConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Endpoint:    cfg.OpenAIEndpoint,
		Deployment:  cfg.OpenAIDeployment,
		APIVersion:  cfg.OpenAIAPIVersion,
		Temperature: cfg.Temperature,
		Azure:       cfg.OpenAIAzure,
	})
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}

	h := hub.New(logger)
	go h.Run()

	ag := agent.New(llm, mcpClient, tools, cfg.Temperature, logger)
	srv := server.New(cfg, h, ag, mcpClient, logger)
	srv.StartBridge()
	defer srv.Shutdown()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(cfg.Addr())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		return nil
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
