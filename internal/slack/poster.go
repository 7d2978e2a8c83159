package slack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/sony/gobreaker/v2"

	perrors "github.com/p-blackswan/superclaw/internal/errors"
	"github.com/p-blackswan/superclaw/internal/metrics"
	"github.com/p-blackswan/superclaw/internal/retry"
	"github.com/p-blackswan/superclaw/internal/routing"
	"github.com/p-blackswan/superclaw/internal/store"
)

// PosterConfig tunes retries and the circuit breaker around chat.postMessage.
type PosterConfig struct {
	Retry       retry.Config
	MaxFailures uint32        // consecutive transient failures before the circuit opens
	OpenTimeout time.Duration // how long the circuit stays open
}

// DefaultPosterConfig returns the production settings.
func DefaultPosterConfig() PosterConfig {
	return PosterConfig{
		Retry:       retry.DefaultConfig(),
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
	}
}

// Poster posts messages with retries behind a circuit breaker. It also
// delivers fired cron jobs to their channel.
type Poster struct {
	api     BotAPI
	breaker *gobreaker.CircuitBreaker[string]
	retry   retry.Config
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewPoster creates a poster. m may be nil.
func NewPoster(api BotAPI, cfg PosterConfig, m *metrics.Metrics, logger zerolog.Logger) *Poster {
	logger = logger.With().Str("component", "slack.poster").Logger()
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	p := &Poster{
		api:     api,
		retry:   cfg.Retry,
		metrics: m,
		logger:  logger,
	}
	p.retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying slack post")
	}
	p.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "slack:post",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
		// Permanent errors such as channel_not_found say nothing about Slack's health.
		IsSuccessful: func(err error) bool {
			return err == nil || !perrors.IsRetryable(err)
		},
	})
	return p
}

// Post sends a message and returns its timestamp.
func (p *Poster) Post(ctx context.Context, channelID string, opts ...slack.MsgOption) (string, error) {
	ts, err := p.breaker.Execute(func() (string, error) {
		return retry.DoValue(ctx, p.retry, func(ctx context.Context) (string, error) {
			_, ts, err := p.api.PostMessageContext(ctx, channelID, opts...)
			return ts, classifyError(err)
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("slack circuit open: %w: %w", perrors.ErrUnavailable, err)
		}
		if p.metrics != nil {
			p.metrics.RecordError("slack", "post")
		}
		return "", err
	}
	return ts, nil
}

// State reports the circuit breaker state.
func (p *Poster) State() gobreaker.State {
	return p.breaker.State()
}

// DispatchCron posts a fired job and its routing decision to the job's
// channel. Jobs without a channel are routed and recorded only.
func (p *Poster) DispatchCron(ctx context.Context, job store.CronJob, d routing.Decision) error {
	if job.Channel == "" {
		return nil
	}
	text := CronText(job, d)
	_, err := p.Post(ctx, job.Channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(CronBlocks(job, d)...),
	)
	return err
}

// classifyError maps slack-go errors onto APIError so retry and the breaker
// can tell transient failures from permanent ones.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		return &perrors.APIError{Service: "slack", StatusCode: 429, Message: "rate limited", Err: perrors.ErrRateLimit}
	}
	var sc slack.StatusCodeError
	if errors.As(err, &sc) {
		return &perrors.APIError{Service: "slack", StatusCode: sc.Code, Message: sc.Status, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("slack: %w", perrors.ErrTimeout)
	}
	return &perrors.APIError{Service: "slack", Message: err.Error(), Err: err}
}
