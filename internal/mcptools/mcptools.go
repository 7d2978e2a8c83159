// Package mcptools exposes the routing control plane as MCP tools, so an
// agent in the fleet can ask where a message or task belongs.
//
// Each tool is a struct with its dependencies, a Definition returning the
// mcp.Tool schema and a Handle processing the call. Tool failures are
// reported as error results, never as protocol errors.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/p-blackswan/superclaw/internal/routing"
)

// Classifier runs the routing classifiers and records their decisions.
// dispatch.Service satisfies it.
type Classifier interface {
	Route(ctx context.Context, source string, in routing.Input) (routing.Decision, error)
	Assign(ctx context.Context, source, title, description string) (routing.Assignment, error)
}

// Catalog lists the configured rules and agents. store.Store satisfies it.
type Catalog interface {
	ListRules(ctx context.Context) ([]routing.RoutingRule, error)
	ListAgents(ctx context.Context) ([]routing.AgentDefinition, error)
}

const instructions = `SuperClaw routes work to agents in the fleet.
Use route_message to find the agent for a chat message, assign_task to find
the best agent for a task, and list_rules / list_agents to inspect the
configuration behind those answers.`

// NewServer builds an MCP server with every tool registered.
func NewServer(version string, classifier Classifier, catalog Catalog) *server.MCPServer {
	s := server.NewMCPServer(
		"superclaw",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	route := NewRouteTool(classifier)
	s.AddTool(route.Definition(), route.Handle)

	assign := NewAssignTool(classifier)
	s.AddTool(assign.Definition(), assign.Handle)

	rules := NewListRulesTool(catalog)
	s.AddTool(rules.Definition(), rules.Handle)

	agents := NewListAgentsTool(catalog)
	s.AddTool(agents.Definition(), agents.Handle)

	return s
}

// jsonResult renders v as an indented JSON text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}
