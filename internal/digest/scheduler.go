package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Poster is the part of *slack.Client the digest needs.
type Poster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

type Scheduler struct {
	schedule cron.Schedule
	spec     string
	store    StatsStore
	poster   Poster
	channel  string
	loc      *time.Location
	logger   *zap.Logger
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time
}

// NewScheduler parses spec, a standard 5-field cron expression evaluated in
// loc, and returns a scheduler posting the dashboard to channel.
func NewScheduler(spec string, loc *time.Location, store StatsStore, poster Poster, channel string, logger *zap.Logger) (*Scheduler, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("digest schedule is empty")
	}
	if channel == "" {
		return nil, errors.New("digest channel is empty")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid digest schedule '%s': %w", spec, err)
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		schedule: sched,
		spec:     spec,
		store:    store,
		poster:   poster,
		channel:  channel,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
		after:    time.After,
	}, nil
}

// Next returns the first run strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

// Run posts the digest at every scheduled time until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("digest scheduled", zap.String("cron", s.spec), zap.String("channel", s.channel))
	for {
		now := s.now().In(s.loc)
		next := s.schedule.Next(now)
		wait := next.Sub(now)
		s.logger.Info("digest next run", zap.Time("at", next), zap.Duration("in", wait.Round(time.Minute)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(wait):
		}

		if err := s.PostOnce(ctx); err != nil {
			s.logger.Error("digest post failed", zap.Error(err))
		}
	}
}

// PostOnce builds the dashboard and posts it to the channel.
func (s *Scheduler) PostOnce(ctx context.Context) error {
	d, err := Load(ctx, s.store, s.now().In(s.loc), s.logger)
	if err != nil {
		return err
	}
	_, _, err = s.poster.PostMessage(s.channel, slack.MsgOptionText(d.Format(), false))
	if err != nil {
		return fmt.Errorf("posting digest: %w", err)
	}
	s.logger.Info("digest posted", zap.String("channel", s.channel))
	return nil
}
