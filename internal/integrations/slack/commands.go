package slackbot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"ticketclassifier/internal/digest"
	"ticketclassifier/internal/triage"
)

// HandleCommand runs a slash command and returns the ephemeral reply.
// Unknown commands return "".
func (b *Bot) HandleCommand(ctx context.Context, cmd slack.SlashCommand) string {
	switch cmd.Command {
	case "/classify":
		return b.handleClassify(ctx, cmd)
	case "/reclassify":
		return b.handleReclassify(ctx, cmd)
	case "/classify-stats":
		return b.handleStats(ctx, cmd)
	case "/classify-help":
		return b.handleHelp(ctx, cmd)
	}
	return ""
}

func (b *Bot) handleClassify(ctx context.Context, cmd slack.SlashCommand) string {
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return "Usage: `/classify <ticket description>`"
	}
	return b.classify(ctx, text)
}

func (b *Bot) classify(ctx context.Context, text string) string {
	out, err := b.triage.Classify(ctx, text)
	if err != nil {
		b.logger.Error("slack classify failed", zap.Error(err))
		return fmt.Sprintf("Error classifying ticket: %v", err)
	}
	return formatOutcome(out)
}

func formatOutcome(out triage.Outcome) string {
	cat := out.Result.Category()
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Category:* `%s` (%s priority)\n", cat.Name(), cat.Priority())
	fmt.Fprintf(&sb, "*Confidence:* %.2f\n", out.Result.Confidence())
	fmt.Fprintf(&sb, "*Method:* %s\n", out.Method)
	if matched := out.Result.MatchedPatterns(); len(matched) > 0 {
		fmt.Fprintf(&sb, "*Matched:* %s\n", strings.Join(matched, ", "))
	}
	if cat.AutoResolvable() {
		sb.WriteString("_This category can usually be resolved automatically._\n")
	}
	if out.ClassificationID > 0 {
		fmt.Fprintf(&sb, "*History ID:* %d (correct with `/reclassify %d <category>`)\n", out.ClassificationID, out.ClassificationID)
	}
	fmt.Fprintf(&sb, "_request %s_", out.RequestID)
	return sb.String()
}

func (b *Bot) handleReclassify(ctx context.Context, cmd slack.SlashCommand) string {
	if msg, ok := b.requireManager(ctx, cmd); !ok {
		return msg
	}

	fields := strings.Fields(cmd.Text)
	if len(fields) != 2 {
		return "Usage: `/reclassify <history id> <category>`"
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Sprintf("Invalid history ID '%s'.", fields[0])
	}

	c, err := b.triage.Correct(ctx, id, fields[1], cmd.UserID)
	switch {
	case errors.Is(err, triage.ErrNoStore):
		return "Classification history is disabled, so corrections cannot be recorded."
	case errors.Is(err, triage.ErrUnknownCategory):
		return fmt.Sprintf("Unknown category '%s'. Valid categories: %s",
			fields[1], strings.Join(b.triage.Rules().Registry().Names(), ", "))
	case err != nil:
		b.logger.Error("slack reclassify failed", zap.Int64("id", id), zap.Error(err))
		return fmt.Sprintf("Could not reclassify #%d: %v", id, err)
	}
	return fmt.Sprintf("Reclassified #%d from `%s` to `%s`.", id, c.OriginalCategory, c.CorrectedCategory)
}

func (b *Bot) handleStats(ctx context.Context, cmd slack.SlashCommand) string {
	if msg, ok := b.requireManager(ctx, cmd); !ok {
		return msg
	}
	if b.stats == nil {
		return "Classification history is disabled. Set `db_path` to collect stats."
	}
	d, err := digest.Load(ctx, b.stats, b.now(), b.logger)
	if err != nil {
		b.logger.Error("slack stats failed", zap.Error(err))
		return fmt.Sprintf("Error loading stats: %v", err)
	}
	return d.Format()
}

func (b *Bot) handleHelp(ctx context.Context, cmd slack.SlashCommand) string {
	lines := []string{
		"*Ticket Classifier Commands*",
		"",
		"`/classify <ticket description>` - Classify a support ticket.",
		"`/classify-help` - Show this help.",
		"You can also mention me with a ticket description.",
	}

	isManager, err := b.managers.isManager(ctx, cmd.UserID)
	if err != nil {
		b.logger.Warn("slack manager check failed", zap.String("user", cmd.UserID), zap.Error(err))
	}
	if isManager {
		lines = append(lines,
			"",
			"*Manager Commands*",
			"`/reclassify <history id> <category>` - Correct a classification.",
			"`/classify-stats` - Show the accuracy dashboard.",
		)
	}

	lines = append(lines, "", "*Categories*")
	for _, c := range b.triage.Rules().GetCategories() {
		lines = append(lines, fmt.Sprintf("- `%s` (%s): %s", c.Name(), c.Priority(), c.Description()))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) requireManager(ctx context.Context, cmd slack.SlashCommand) (string, bool) {
	ok, err := b.managers.isManager(ctx, cmd.UserID)
	if err != nil {
		b.logger.Error("slack manager check failed", zap.String("user", cmd.UserID), zap.Error(err))
		return fmt.Sprintf("Error checking permissions: %v", err), false
	}
	if !ok {
		return "Sorry, only managers can use this command.", false
	}
	return "", true
}
