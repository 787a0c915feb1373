// Package digest summarises classification history for Slack, on demand and
// on a cron schedule.
package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ticketclassifier/internal/domain"
)

// StatsStore is the read side of the history store.
type StatsStore interface {
	GetClassificationStats(ctx context.Context, since time.Time) (domain.ClassificationStats, error)
	GetCategoryCounts(ctx context.Context, since time.Time) ([]domain.CategoryCount, error)
	GetCorrectionsByCategory(ctx context.Context, since time.Time) ([]domain.CategoryCorrectionStat, error)
	GetWeeklyClassificationTrend(ctx context.Context, since time.Time) ([]domain.WeeklyTrend, error)
	GetRecentCorrections(ctx context.Context, since time.Time, limit int) ([]domain.ClassificationCorrection, error)
}

const recentCorrectionsLimit = 5

// Dashboard is everything the stats message shows.
type Dashboard struct {
	AllTime           domain.ClassificationStats
	Recent            domain.ClassificationStats
	Categories        []domain.CategoryCount
	Corrections       []domain.CategoryCorrectionStat
	Trends            []domain.WeeklyTrend
	RecentCorrections []domain.ClassificationCorrection
}

// Load reads the dashboard as of now. Only the all-time totals are required;
// the other sections are left empty when their query fails.
func Load(ctx context.Context, store StatsStore, now time.Time, logger *zap.Logger) (Dashboard, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var d Dashboard
	var err error

	d.AllTime, err = store.GetClassificationStats(ctx, time.Time{})
	if err != nil {
		return d, fmt.Errorf("loading stats: %w", err)
	}

	fourWeeksAgo := now.AddDate(0, 0, -28)
	if d.Recent, err = store.GetClassificationStats(ctx, fourWeeksAgo); err != nil {
		logger.Warn("digest recent stats failed", zap.Error(err))
		d.Recent = domain.ClassificationStats{}
	}
	if d.Categories, err = store.GetCategoryCounts(ctx, fourWeeksAgo); err != nil {
		logger.Warn("digest category counts failed", zap.Error(err))
	}
	if d.Corrections, err = store.GetCorrectionsByCategory(ctx, fourWeeksAgo); err != nil {
		logger.Warn("digest corrections failed", zap.Error(err))
	}
	if d.Trends, err = store.GetWeeklyClassificationTrend(ctx, now.AddDate(0, 0, -56)); err != nil {
		logger.Warn("digest trend failed", zap.Error(err))
	}
	if d.RecentCorrections, err = store.GetRecentCorrections(ctx, fourWeeksAgo, recentCorrectionsLimit); err != nil {
		logger.Warn("digest recent corrections failed", zap.Error(err))
	}
	return d, nil
}

func accuracy(s domain.ClassificationStats) float64 {
	if s.TotalClassifications == 0 {
		return 0
	}
	a := 100.0 * float64(s.TotalClassifications-s.TotalCorrections) / float64(s.TotalClassifications)
	return max(a, 0)
}

// Format renders d as Slack mrkdwn.
func (d Dashboard) Format() string {
	var sb strings.Builder
	sb.WriteString("*Ticket Classification Dashboard*\n\n")

	sb.WriteString("*All-time Overview*\n")
	writeStats(&sb, d.AllTime)

	sb.WriteString("\n*Last 4 Weeks*\n")
	writeStats(&sb, d.Recent)

	sb.WriteString("\n*Confidence Distribution (last 4 weeks)*\n")
	fmt.Fprintf(&sb, "- <50%%: %d\n", d.Recent.BucketBelow50)
	fmt.Fprintf(&sb, "- 50-70%%: %d\n", d.Recent.Bucket50to70)
	fmt.Fprintf(&sb, "- 70-90%%: %d\n", d.Recent.Bucket70to90)
	fmt.Fprintf(&sb, "- 90%%+: %d\n", d.Recent.Bucket90Plus)

	if len(d.Categories) > 0 {
		sb.WriteString("\n*Tickets by Category (last 4 weeks)*\n")
		for _, c := range d.Categories {
			fmt.Fprintf(&sb, "- %s: %d (avg conf %.2f)\n", c.Category, c.Count, c.AvgConfidence)
		}
	}

	if len(d.Corrections) > 0 {
		sb.WriteString("\n*Most Corrected Categories (last 4 weeks)*\n")
		for _, c := range d.Corrections {
			fmt.Fprintf(&sb, "- %s: %d corrections\n", c.OriginalCategory, c.CorrectionCount)
		}
	}

	if len(d.Trends) > 0 {
		sb.WriteString("\n*Weekly Trend (last 8 weeks)*\n")
		for _, t := range d.Trends {
			fmt.Fprintf(&sb, "- %s: %d classified, %d corrected, avg conf %.2f\n",
				t.WeekStart, t.Classifications, t.Corrections, t.AvgConfidence)
		}
	}
	if len(d.RecentCorrections) > 0 {
		sb.WriteString("\n*Recent Corrections*\n")
		for _, c := range d.RecentCorrections {
			fmt.Fprintf(&sb, "- #%d `%s` -> `%s` by <@%s>: %s\n",
				c.ClassificationID, c.OriginalCategory, c.CorrectedCategory, c.CorrectedBy, excerpt(c.TicketText, 60))
		}
	}
	return sb.String()
}

func excerpt(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}

func writeStats(sb *strings.Builder, s domain.ClassificationStats) {
	fmt.Fprintf(sb, "- Classifications: %d\n", s.TotalClassifications)
	fmt.Fprintf(sb, "- Corrections: %d\n", s.TotalCorrections)
	if s.TotalClassifications > 0 {
		fmt.Fprintf(sb, "- Accuracy: %.1f%%\n", accuracy(s))
		fmt.Fprintf(sb, "- Avg confidence: %.2f\n", s.AvgConfidence)
	}
}
