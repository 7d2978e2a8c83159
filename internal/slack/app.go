// Package slack is the Socket Mode intake for SuperClaw. Messages addressed
// to the bot are classified by the message router and, when the decision
// asks for it, answered in-thread with the agent that will pick them up.
package slack

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// BotAPI abstracts the Slack API client for testing.
type BotAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
}

// App is the Slack bot application using Socket Mode.
type App struct {
	api     *slack.Client
	socket  *socketmode.Client
	logger  zerolog.Logger
	handler *Handler
}

// NewClient builds the Slack Web API client shared by the app and the poster.
func NewClient(botToken, appToken string) *slack.Client {
	return slack.New(botToken, slack.OptionAppLevelToken(appToken))
}

// NewApp wires a Socket Mode connection to handler.
func NewApp(api *slack.Client, handler *Handler, logger zerolog.Logger) *App {
	socket := socketmode.New(api)
	handler.socket = socket

	return &App{
		api:     api,
		socket:  socket,
		logger:  logger.With().Str("component", "slack").Logger(),
		handler: handler,
	}
}

// Run starts the Socket Mode event loop. Blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	auth, err := a.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	a.handler.SetBotUserID(auth.UserID)
	a.logger.Info().Str("bot_user", auth.UserID).Str("team", auth.Team).Msg("starting Slack Socket Mode connection")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-a.socket.Events:
				if !ok {
					return
				}
				a.handler.HandleEvent(ctx, evt)
			}
		}
	}()

	if err := a.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("socket mode error: %w", err)
	}
	a.logger.Info().Msg("Slack Socket Mode stopped")
	return nil
}
