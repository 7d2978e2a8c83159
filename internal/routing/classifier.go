// Package routing decides which agent in the fleet should handle a piece of
// text.
//
// Two classifiers share one contract. The message Router walks RoutingRules
// in priority order with keyword-first, channel-fallback precedence. Porter
// scores each agent's free-text handoff rules against a task and picks the
// best fit. Both are pure functions over a Snapshot; the service wrappers in
// this package only add a snapshot source, a fallback and logging.
package routing

import "context"

// Classifier names reported in decisions.
const (
	ClassifierRouter = "router"
	ClassifierPorter = "porter"
)

// Input is the text handed to a TextClassifier. The router reads Text,
// Channel and Sender; Porter reads Text as the task title and Detail as the
// description.
type Input struct {
	Text    string `json:"text"`
	Detail  string `json:"detail,omitempty"`
	Channel string `json:"channel,omitempty"`
	Sender  string `json:"sender,omitempty"`
}

// Decision is the outcome of one classification, with enough detail for a
// debugging UI to explain it.
type Decision struct {
	Classifier   string   `json:"classifier"`
	AgentID      string   `json:"agentId"`
	Fallback     bool     `json:"fallback"`
	RuleID       string   `json:"ruleId,omitempty"`
	RuleName     string   `json:"ruleName,omitempty"`
	MatchedBy    string   `json:"matchedBy,omitempty"`
	Model        string   `json:"model,omitempty"`
	SpawnNew     bool     `json:"spawnNew"`
	Notify       bool     `json:"notify"`
	MatchedRules []string `json:"matchedRules,omitempty"`
	Score        int      `json:"score"`
	Reasoning    string   `json:"reasoning"`
}

// TextClassifier maps text to an agent id. The error is only ever a failure
// to obtain a snapshot; "no match" is reported as a fallback Decision.
type TextClassifier interface {
	Classify(ctx context.Context, in Input) (Decision, error)
}
