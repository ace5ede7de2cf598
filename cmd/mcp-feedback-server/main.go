// Command mcp-feedback-server exposes the ralphbot feedback queue to
// MCP-speaking agents over stdio. It is a thin client of the admin
// HTTP API; authentication and authorization stay server-side.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverVersion = "v1.0.0"

func main() {
	apiURL := os.Getenv("RALPH_API_URL")
	if apiURL == "" {
		log.Fatal("[MCP Feedback Server] RALPH_API_URL is not set")
	}
	token := os.Getenv("RALPH_ADMIN_TOKEN")
	if token == "" {
		log.Fatal("[MCP Feedback Server] RALPH_ADMIN_TOKEN is not set")
	}

	log.Printf("[MCP Feedback Server] Starting against %s", apiURL)

	api := newAPIClient(apiURL, token)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "ralph-feedback",
		Version: serverVersion,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "queue_summary",
		Description: "Summarize the feedback queue: counts per status plus the highest-priority open entries",
	}, api.HandleQueueSummary)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_feedback",
		Description: "File a new feedback entry (bug, feature, or praise) into the queue",
	}, api.HandleSubmitFeedback)

	log.Println("[MCP Feedback Server] Registered tools: queue_summary, submit_feedback")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[MCP Feedback Server] Received shutdown signal")
		cancel()
	}()

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Fatalf("[MCP Feedback Server] Server error: %v", err)
	}
	log.Println("[MCP Feedback Server] Server stopped gracefully")
}
