// Package slackbot exposes ticket classification over Slack slash commands
// and app mentions, using Socket Mode.
package slackbot

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"ticketclassifier/internal/digest"
	"ticketclassifier/internal/triage"
)

// Poster is the part of *slack.Client the bot replies through.
type Poster interface {
	PostEphemeral(channelID, userID string, options ...slack.MsgOption) (string, error)
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

type Bot struct {
	api      Poster
	triage   *triage.Service
	stats    digest.StatsStore
	managers *managerSet
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Bot)

// WithStats enables /classify-stats. Without it the command reports that
// history is disabled.
func WithStats(store digest.StatsStore) Option {
	return func(b *Bot) { b.stats = store }
}

// WithManagers restricts /reclassify and /classify-stats to the given Slack
// user IDs or display names. list resolves names and may be nil.
func WithManagers(identifiers []string, list func(ctx context.Context) ([]slack.User, error)) Option {
	return func(b *Bot) { b.managers = newManagerSet(identifiers, list, b.logger) }
}

func WithLogger(logger *zap.Logger) Option {
	return func(b *Bot) { b.logger = logger }
}

func New(api Poster, svc *triage.Service, opts ...Option) *Bot {
	b := &Bot{
		api:    api,
		triage: svc,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.managers == nil {
		b.managers = newManagerSet(nil, nil, b.logger)
	}
	b.managers.logger = b.logger
	return b
}

// Start runs the Socket Mode event loop until ctx is cancelled.
func (b *Bot) Start(ctx context.Context, api *slack.Client) error {
	client := socketmode.New(api)

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeConnected:
				b.logger.Info("slack connected via socket mode")
			case socketmode.EventTypeSlashCommand:
				client.Ack(*evt.Request)
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				b.logger.Info("slack command received",
					zap.String("command", cmd.Command),
					zap.String("user", cmd.UserID),
					zap.String("channel", cmd.ChannelID),
				)
				go b.handleSlashCommand(ctx, cmd)
			case socketmode.EventTypeEventsAPI:
				client.Ack(*evt.Request)
				event, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				go b.handleEventsAPI(ctx, event)
			}
		}
	}()

	return client.RunContext(ctx)
}

func (b *Bot) handleSlashCommand(ctx context.Context, cmd slack.SlashCommand) {
	reply := b.HandleCommand(ctx, cmd)
	if reply == "" {
		return
	}
	b.postEphemeral(cmd.ChannelID, cmd.UserID, reply)
}

func (b *Bot) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	mention, ok := event.InnerEvent.Data.(*slackevents.AppMentionEvent)
	if !ok || mention.BotID != "" {
		return
	}
	threadTS := mention.ThreadTimeStamp
	if threadTS == "" {
		threadTS = mention.TimeStamp
	}
	reply := b.MentionReply(ctx, mention.Text)
	_, _, err := b.api.PostMessage(mention.Channel,
		slack.MsgOptionText(reply, false),
		slack.MsgOptionTS(threadTS),
	)
	if err != nil {
		b.logger.Error("slack post failed", zap.String("channel", mention.Channel), zap.Error(err))
	}
}

var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)

// MentionReply classifies the text of an app mention, minus the mention.
func (b *Bot) MentionReply(ctx context.Context, text string) string {
	text = strings.TrimSpace(mentionPattern.ReplaceAllString(text, " "))
	if text == "" {
		return "Mention me with a ticket description and I'll classify it."
	}
	return b.classify(ctx, text)
}

func (b *Bot) postEphemeral(channelID, userID, text string) {
	if _, err := b.api.PostEphemeral(channelID, userID, slack.MsgOptionText(text, false)); err != nil {
		b.logger.Error("slack ephemeral post failed",
			zap.String("channel", channelID),
			zap.String("user", userID),
			zap.Error(err),
		)
	}
}
