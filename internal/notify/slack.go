// Package notify posts sync run outcomes to Slack.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/impactlens/internal/syncer"
)

// maxListedKeys bounds how many failed keys a message lists.
const maxListedKeys = 10

// Poster abstracts the Slack API client for testing.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Slack sends sync notifications to one channel.
type Slack struct {
	api     Poster
	channel string
	logger  zerolog.Logger
}

// NewSlack creates a notifier using a bot token.
func NewSlack(botToken, channel string, logger zerolog.Logger) *Slack {
	return NewSlackWithPoster(slack.New(botToken), channel, logger)
}

// NewSlackWithPoster creates a notifier with a custom client.
func NewSlackWithPoster(api Poster, channel string, logger zerolog.Logger) *Slack {
	return &Slack{
		api:     api,
		channel: channel,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// NotifySync posts a summary of r.
func (s *Slack) NotifySync(ctx context.Context, r syncer.Result) error {
	_, ts, err := s.api.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(SyncSummary(r), false),
		slack.MsgOptionBlocks(SyncBlocks(r)...),
	)
	if err != nil {
		return fmt.Errorf("posting sync notification: %w", err)
	}
	s.logger.Debug().Str("run_id", r.RunID).Str("ts", ts).Msg("sync notification sent")
	return nil
}

// SyncSummary is the plain-text fallback for a sync message.
func SyncSummary(r syncer.Result) string {
	if r.Status == syncer.StatusFailed {
		return fmt.Sprintf("Jira sync failed: %s", r.ErrorMessage)
	}
	return fmt.Sprintf("Jira sync completed: %d fetched, %d new, %d updated, %d failed",
		r.TotalFetched, r.NewAdded, r.ExistingUpdated, r.FailedCount)
}

// SyncBlocks renders r as Block Kit blocks.
func SyncBlocks(r syncer.Result) []slack.Block {
	title := "✅ Jira sync completed"
	if r.Status == syncer.StatusFailed {
		title = "❌ Jira sync failed"
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text", title, false, false),
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf(
				"*Query:* `%s`\n*Fetched:* %d  *New:* %d  *Updated:* %d  *Failed:* %d\n*Duration:* %s",
				r.Query, r.TotalFetched, r.NewAdded, r.ExistingUpdated, r.FailedCount,
				r.Duration().Round(time.Millisecond),
			), false, false),
			nil, nil,
		),
	}

	if r.ErrorMessage != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", "*Error:* "+r.ErrorMessage, false, false),
			nil, nil,
		))
	}

	if len(r.FailedKeys) > 0 {
		keys := r.FailedKeys
		more := ""
		if len(keys) > maxListedKeys {
			more = fmt.Sprintf(" and %d more", len(keys)-maxListedKeys)
			keys = keys[:maxListedKeys]
		}
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject("mrkdwn", "Failed tickets: "+strings.Join(keys, ", ")+more, false, false),
		))
	}
	return blocks
}
