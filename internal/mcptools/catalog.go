package mcptools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/p-blackswan/superclaw/internal/routing"
)

// ListRulesTool handles the list_rules MCP tool.
type ListRulesTool struct {
	catalog Catalog
}

// NewListRulesTool creates a ListRulesTool.
func NewListRulesTool(c Catalog) *ListRulesTool {
	return &ListRulesTool{catalog: c}
}

// Definition returns the MCP tool definition for list_rules.
func (t *ListRulesTool) Definition() mcp.Tool {
	return mcp.NewTool("list_rules",
		mcp.WithDescription("List routing rules in evaluation order (priority ascending)."),
		mcp.WithBoolean("include_disabled",
			mcp.Description("Include disabled rules (default: false)"),
		),
	)
}

// Handle processes the list_rules tool call.
func (t *ListRulesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rules, err := t.catalog.ListRules(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list rules: %v", err)), nil
	}

	includeDisabled := boolArg(req, "include_disabled", false)
	out := make([]routing.RoutingRule, 0, len(rules))
	for _, r := range routing.ByPriority(rules) {
		if r.Enabled || includeDisabled {
			out = append(out, r)
		}
	}
	return jsonResult(out)
}

// ListAgentsTool handles the list_agents MCP tool.
type ListAgentsTool struct {
	catalog Catalog
}

// NewListAgentsTool creates a ListAgentsTool.
func NewListAgentsTool(c Catalog) *ListAgentsTool {
	return &ListAgentsTool{catalog: c}
}

// agentSummary omits prompts, which can be long and are not useful to a caller
// deciding where to send work.
type agentSummary struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Enabled      bool     `json:"enabled"`
	HandoffRules []string `json:"handoffRules"`
	Model        string   `json:"model,omitempty"`
	Skills       []string `json:"skills,omitempty"`
}

// Definition returns the MCP tool definition for list_agents.
func (t *ListAgentsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_agents",
		mcp.WithDescription("List the agents in the fleet with their handoff rules."),
		mcp.WithBoolean("include_disabled",
			mcp.Description("Include disabled agents (default: false)"),
		),
	)
}

// Handle processes the list_agents tool call.
func (t *ListAgentsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agents, err := t.catalog.ListAgents(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list agents: %v", err)), nil
	}

	includeDisabled := boolArg(req, "include_disabled", false)
	out := make([]agentSummary, 0, len(agents))
	for _, a := range agents {
		if !a.Enabled && !includeDisabled {
			continue
		}
		out = append(out, agentSummary{
			ID:           a.ID,
			Name:         a.DisplayName(),
			Enabled:      a.Enabled,
			HandoffRules: a.HandoffRules,
			Model:        a.Model,
			Skills:       a.Skills,
		})
	}
	return jsonResult(out)
}
