package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/p-blackswan/superclaw/internal/routing"
	"github.com/p-blackswan/superclaw/internal/store"
)

// RouteTool handles the route_message MCP tool.
type RouteTool struct {
	classifier Classifier
}

// NewRouteTool creates a RouteTool.
func NewRouteTool(c Classifier) *RouteTool {
	return &RouteTool{classifier: c}
}

// Definition returns the MCP tool definition for route_message.
func (t *RouteTool) Definition() mcp.Tool {
	return mcp.NewTool("route_message",
		mcp.WithDescription(
			"Find the agent that should handle a chat message. Keyword rules win over channel rules; "+
				"when nothing matches the configured fallback agent is returned with fallback=true.",
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The message text"),
		),
		mcp.WithString("channel",
			mcp.Description("Channel the message was posted in, with or without '#'"),
		),
		mcp.WithString("sender",
			mcp.Description("Sender id, recorded with the decision"),
		),
	)
}

// Handle processes the route_message tool call.
func (t *RouteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Blank text is still routed; channel rules and catch-alls apply to it.
	message, ok := req.GetArguments()["message"].(string)
	if !ok {
		return mcp.NewToolResultError("'message' is required"), nil
	}

	d, err := t.classifier.Route(ctx, store.SourceMCP, routing.Input{
		Text:    message,
		Channel: req.GetString("channel", ""),
		Sender:  req.GetString("sender", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to route message: %v", err)), nil
	}
	return jsonResult(d)
}

// AssignTool handles the assign_task MCP tool.
type AssignTool struct {
	classifier Classifier
}

// NewAssignTool creates an AssignTool.
func NewAssignTool(c Classifier) *AssignTool {
	return &AssignTool{classifier: c}
}

// Definition returns the MCP tool definition for assign_task.
func (t *AssignTool) Definition() mcp.Tool {
	return mcp.NewTool("assign_task",
		mcp.WithDescription(
			"Pick the best agent for a task by scoring each agent's handoff rules against the title and description. "+
				"Returns the agent, the matched rules, the score and the reasoning.",
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Task title"),
		),
		mcp.WithString("description",
			mcp.Description("Task description"),
		),
	)
}

// Handle processes the assign_task tool call.
func (t *AssignTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	if strings.TrimSpace(title) == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}

	a, err := t.classifier.Assign(ctx, store.SourceMCP, title, req.GetString("description", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to assign task: %v", err)), nil
	}
	return jsonResult(a)
}
