package slack

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/p-blackswan/superclaw/internal/metrics"
	"github.com/p-blackswan/superclaw/internal/routing"
	"github.com/p-blackswan/superclaw/internal/store"
)

// DMChannel is the channel name DMs are classified under.
const DMChannel = "dm"

// Router classifies a Slack message. dispatch.Service satisfies it.
type Router interface {
	Route(ctx context.Context, source string, in routing.Input) (routing.Decision, error)
}

// AgentLookup resolves agent display names for replies.
type AgentLookup interface {
	GetAgent(ctx context.Context, id string) (routing.AgentDefinition, error)
}

// HandlerDeps are the collaborators of a Handler. Metrics may be nil.
type HandlerDeps struct {
	Router          Router
	Agents          AgentLookup
	Poster          *Poster
	Channels        *ChannelNames
	Middleware      *Middleware
	AllowedChannels []string // names or ids; mentions and DMs are always handled
	Metrics         *metrics.Metrics
}

// Handler processes Slack events.
type Handler struct {
	deps    HandlerDeps
	allowed map[string]bool
	socket  *socketmode.Client
	logger  zerolog.Logger

	mu        sync.RWMutex
	botUserID string
}

var mentionRE = regexp.MustCompile(`<@[A-Z0-9]+(\|[^>]*)?>`)

// NewHandler creates a new event handler.
func NewHandler(deps HandlerDeps, logger zerolog.Logger) *Handler {
	allowed := make(map[string]bool, len(deps.AllowedChannels))
	for _, ch := range deps.AllowedChannels {
		if ch = strings.TrimSpace(ch); ch != "" {
			allowed[ch] = true
			allowed[routing.NormalizeChannel(ch)] = true
		}
	}
	return &Handler{
		deps:    deps,
		allowed: allowed,
		logger:  logger.With().Str("component", "slack.handler").Logger(),
	}
}

// SetBotUserID records the bot's own user id so its mentions can be
// stripped and its messages ignored.
func (h *Handler) SetBotUserID(id string) {
	h.mu.Lock()
	h.botUserID = id
	h.mu.Unlock()
}

func (h *Handler) botID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.botUserID
}

// HandleEvent routes Socket Mode events to the appropriate handler.
func (h *Handler) HandleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		h.handleEventsAPI(ctx, evt)
	case socketmode.EventTypeConnected:
		h.logger.Info().Msg("connected to Slack")
	case socketmode.EventTypeConnectionError:
		h.logger.Warn().Msg("Slack connection error, retrying")
	default:
		h.logger.Debug().Str("type", string(evt.Type)).Msg("unhandled event type")
	}
}

func (h *Handler) handleEventsAPI(ctx context.Context, evt socketmode.Event) {
	// Slack requires an ack within 3 seconds.
	if h.socket != nil && evt.Request != nil {
		h.socket.Ack(*evt.Request)
	}

	eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		h.logger.Warn().Str("type", string(evt.Type)).Msg("failed to cast events_api data")
		return
	}
	if eventsAPIEvent.Type == slackevents.CallbackEvent {
		h.handleCallbackEvent(ctx, eventsAPIEvent.InnerEvent)
	}
}

type inbound struct {
	kind     string
	channel  string
	user     string
	text     string
	threadTS string
	ts       string
	dm       bool
}

func (h *Handler) handleCallbackEvent(ctx context.Context, innerEvent slackevents.EventsAPIInnerEvent) {
	switch ev := innerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		h.handleMessage(ctx, inbound{
			kind: "app_mention", channel: ev.Channel, user: ev.User, text: ev.Text,
			threadTS: ev.ThreadTimeStamp, ts: ev.TimeStamp,
		})

	case *slackevents.MessageEvent:
		// Bot posts and edits/deletes carry a subtype or no user.
		if ev.User == "" || ev.SubType != "" || ev.BotID != "" || ev.User == h.botID() {
			return
		}
		if ev.ChannelType == "im" {
			h.handleMessage(ctx, inbound{
				kind: "dm", channel: ev.Channel, user: ev.User, text: ev.Text,
				threadTS: ev.ThreadTimeStamp, ts: ev.TimeStamp, dm: true,
			})
			return
		}
		// The app_mention event covers messages that mention the bot.
		if bot := h.botID(); bot != "" && strings.Contains(ev.Text, "<@"+bot) {
			return
		}
		if len(h.allowed) == 0 {
			return
		}
		h.handleMessage(ctx, inbound{
			kind: "message", channel: ev.Channel, user: ev.User, text: ev.Text,
			threadTS: ev.ThreadTimeStamp, ts: ev.TimeStamp,
		})

	default:
		h.logger.Debug().Str("inner_type", innerEvent.Type).Msg("unhandled callback event type")
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg inbound) {
	channel := DMChannel
	if !msg.dm {
		channel = h.deps.Channels.Name(ctx, msg.channel)
		if msg.kind == "message" && !h.allowed[msg.channel] && !h.allowed[routing.NormalizeChannel(channel)] {
			return
		}
	}

	if h.deps.Middleware != nil && !h.deps.Middleware.CheckRateLimit(msg.user) {
		h.record(msg.kind, "rate_limited")
		return
	}

	text := strings.TrimSpace(mentionRE.ReplaceAllString(msg.text, ""))
	if text == "" {
		h.record(msg.kind, "empty")
		return
	}

	d, err := h.deps.Router.Route(ctx, store.SourceSlack, routing.Input{
		Text:    text,
		Channel: channel,
		Sender:  msg.user,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("channel", msg.channel).Msg("failed to route slack message")
		h.record(msg.kind, "error")
		return
	}

	h.logger.Info().
		Str("kind", msg.kind).
		Str("channel", channel).
		Str("user", msg.user).
		Str("agent", d.AgentID).
		Str("rule", d.RuleID).
		Bool("fallback", d.Fallback).
		Msg("slack message routed")

	if !d.Notify && !d.Fallback {
		h.record(msg.kind, "routed")
		return
	}

	thread := msg.threadTS
	if thread == "" {
		thread = msg.ts
	}
	name := h.agentName(ctx, d.AgentID)
	_, err = h.deps.Poster.Post(ctx, msg.channel,
		slack.MsgOptionText(ReplyText(d, name), false),
		slack.MsgOptionBlocks(DecisionBlocks(d, name)...),
		slack.MsgOptionTS(thread),
	)
	if err != nil {
		h.logger.Warn().Err(err).Str("channel", msg.channel).Msg("failed to post routing reply")
		h.record(msg.kind, "error")
		return
	}
	h.record(msg.kind, "replied")
}

func (h *Handler) agentName(ctx context.Context, id string) string {
	if h.deps.Agents == nil {
		return id
	}
	a, err := h.deps.Agents.GetAgent(ctx, id)
	if err != nil {
		return id
	}
	return a.DisplayName()
}

func (h *Handler) record(kind, result string) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.RecordSlackEvent(kind, result)
	}
}
