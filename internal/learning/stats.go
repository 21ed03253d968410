package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/harrison/skillrunner/internal/models"
)

// HealStat is one rolling statistics bucket.
type HealStat struct {
	PeriodType     string                `json:"period_type"`
	PeriodStart    string                `json:"period_start"`
	ToolName       string                `json:"tool_name"`
	Classification models.Classification `json:"classification"`
	Attempts       int                   `json:"attempts"`
	Successes      int                   `json:"successes"`
}

// statsRetention bounds how many daily and weekly buckets survive.
// Pruned on write like the rest of the store.
const (
	keepDailyStatsDays   = 60
	keepWeeklyStatsWeeks = 26
)

// FoldHealStat folds one auto-heal outcome into the daily and weekly
// counters. Losing an increment to a racing writer is acceptable; SQLite
// row-level upserts keep the documents structurally valid either way.
func (s *Store) FoldHealStat(ctx context.Context, toolName string, class models.Classification, success bool, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}

	daily := at.Format("2006-01-02")
	year, week := at.ISOWeek()
	weekly := fmt.Sprintf("%04d-W%02d", year, week)

	for _, bucket := range []struct {
		periodType, periodStart string
	}{
		{"daily", daily},
		{"weekly", weekly},
	} {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO heal_stats (period_type, period_start, tool_name, classification, attempts, successes)
			 VALUES (?, ?, ?, ?, 1, ?)
			 ON CONFLICT(period_type, period_start, tool_name, classification) DO UPDATE SET
				attempts = attempts + 1,
				successes = successes + excluded.successes`,
			bucket.periodType, bucket.periodStart, toolName, string(class), boolToInt(success))
		if err != nil {
			return fmt.Errorf("fold heal stat (%s): %w", bucket.periodType, err)
		}
	}

	return s.pruneHealStats(ctx, at)
}

func (s *Store) pruneHealStats(ctx context.Context, now time.Time) error {
	dailyCutoff := now.AddDate(0, 0, -keepDailyStatsDays).Format("2006-01-02")
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM heal_stats WHERE period_type = 'daily' AND period_start < ?`, dailyCutoff); err != nil {
		return fmt.Errorf("prune daily heal stats: %w", err)
	}

	wYear, wWeek := now.AddDate(0, 0, -7*keepWeeklyStatsWeeks).ISOWeek()
	weeklyCutoff := fmt.Sprintf("%04d-W%02d", wYear, wWeek)
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM heal_stats WHERE period_type = 'weekly' AND period_start < ?`, weeklyCutoff); err != nil {
		return fmt.Errorf("prune weekly heal stats: %w", err)
	}
	return nil
}

// QueryHealStats returns buckets of the given period type, newest first.
func (s *Store) QueryHealStats(ctx context.Context, periodType string, limit int) ([]HealStat, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT period_type, period_start, tool_name, classification, attempts, successes
		 FROM heal_stats WHERE period_type = ?
		 ORDER BY period_start DESC, tool_name LIMIT ?`, periodType, limit)
	if err != nil {
		return nil, fmt.Errorf("query heal stats: %w", err)
	}
	defer rows.Close()

	var stats []HealStat
	for rows.Next() {
		var st HealStat
		var class string
		if err := rows.Scan(&st.PeriodType, &st.PeriodStart, &st.ToolName,
			&class, &st.Attempts, &st.Successes); err != nil {
			return nil, fmt.Errorf("scan heal stat: %w", err)
		}
		st.Classification = models.Classification(class)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// ListLearnedFixes returns all learned fixes, most successful first.
func (s *Store) ListLearnedFixes(ctx context.Context, limit int) ([]models.LearnedFix, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT tool_name, signature, remediation, success_count, last_used, created_at
		 FROM learned_fixes ORDER BY success_count DESC, last_used DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list learned fixes: %w", err)
	}
	defer rows.Close()

	var fixes []models.LearnedFix
	for rows.Next() {
		var fix models.LearnedFix
		if err := rows.Scan(&fix.ToolName, &fix.Signature, &fix.Remediation,
			&fix.SuccessCount, &fix.LastUsed, &fix.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan learned fix: %w", err)
		}
		fixes = append(fixes, fix)
	}
	return fixes, rows.Err()
}

// Clear wipes learned fixes, heal stats and failure history. Execution
// summaries and confirmation preferences are kept; use ClearPreferences for
// the latter.
func (s *Store) Clear(ctx context.Context) error {
	for _, table := range []string{"learned_fixes", "heal_stats", "failures"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}
