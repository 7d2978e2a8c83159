package slack

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/p-blackswan/superclaw/internal/routing"
	"github.com/p-blackswan/superclaw/internal/store"
)

// maxContextLen keeps reasoning within Block Kit's context element limit.
const maxContextLen = 2000

// truncate shortens s to max runes, appending "…" if truncated.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

// ReplyText is the plain-text form of a routing reply, used for
// notifications and clients without Block Kit.
func ReplyText(d routing.Decision, agentName string) string {
	if d.Fallback {
		return fmt.Sprintf("No routing rule matched, handing this to %s.", agentName)
	}
	return fmt.Sprintf("Routing to %s.", agentName)
}

// DecisionBlocks renders a routing decision as a short in-thread reply.
func DecisionBlocks(d routing.Decision, agentName string) []slack.Block {
	var headline string
	if d.Fallback {
		headline = fmt.Sprintf(":twisted_rightwards_arrows: No routing rule matched. Handing this to *%s*.", agentName)
	} else {
		headline = fmt.Sprintf(":dart: Routing to *%s*", agentName)
		if d.RuleName != "" {
			headline += fmt.Sprintf(" via rule _%s_", d.RuleName)
		}
	}

	var details []string
	if d.Model != "" {
		details = append(details, "model `"+d.Model+"`")
	}
	if d.SpawnNew {
		details = append(details, "new session")
	}
	if len(details) > 0 {
		headline += " (" + strings.Join(details, ", ") + ")"
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", headline, false, false), nil, nil),
	}
	if d.Reasoning != "" {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject("mrkdwn", truncate(d.Reasoning, maxContextLen), false, false),
		))
	}
	return blocks
}

// CronText is the plain-text form of a fired cron job.
func CronText(job store.CronJob, d routing.Decision) string {
	return fmt.Sprintf("Scheduled job %s: %s (routed to %s)", cronName(job), job.Message, d.AgentID)
}

// CronBlocks renders a fired cron job and where it was routed.
func CronBlocks(job store.CronJob, d routing.Decision) []slack.Block {
	text := fmt.Sprintf(":alarm_clock: *%s*\n%s", cronName(job), job.Message)
	return append([]slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", text, false, false), nil, nil),
	}, DecisionBlocks(d, d.AgentID)...)
}

func cronName(job store.CronJob) string {
	if job.Name != "" {
		return job.Name
	}
	return job.ID
}
