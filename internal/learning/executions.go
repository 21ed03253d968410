package learning

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harrison/skillrunner/internal/models"
)

// ExecutionFilter narrows QueryExecutions results. Zero values mean "any".
type ExecutionFilter struct {
	SkillName string
	Status    models.RunStatus
	Since     time.Time
	Limit     int
}

// RecordExecution upserts an execution summary. Called at run start (status
// running) and again at every terminal or paused transition, then pruned by
// the retention window.
func (s *Store) RecordExecution(ctx context.Context, sum models.ExecutionSummary) error {
	var endedAt interface{}
	if !sum.EndedAt.IsZero() {
		endedAt = sum.EndedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (execution_id, skill_name, status, steps_total, steps_failed, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(execution_id) DO UPDATE SET
			status = excluded.status,
			steps_total = excluded.steps_total,
			steps_failed = excluded.steps_failed,
			ended_at = excluded.ended_at`,
		sum.ExecutionID, sum.SkillName, string(sum.Status),
		sum.StepsTotal, sum.StepsFailed, sum.StartedAt, endedAt)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}

	if s.keepExecutionsDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -s.keepExecutionsDays)
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM executions WHERE started_at < ?`, cutoff); err != nil {
			return fmt.Errorf("prune executions: %w", err)
		}
	}
	return nil
}

// QueryExecutions returns execution summaries matching the filter, newest
// first.
func (s *Store) QueryExecutions(ctx context.Context, filter ExecutionFilter) ([]models.ExecutionSummary, error) {
	query := `SELECT execution_id, skill_name, status, steps_total, steps_failed, started_at, ended_at
		FROM executions WHERE 1=1`
	args := []interface{}{}

	if filter.SkillName != "" {
		query += ` AND skill_name = ?`
		args = append(args, filter.SkillName)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, filter.Since)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var summaries []models.ExecutionSummary
	for rows.Next() {
		var sum models.ExecutionSummary
		var status string
		var endedAt sql.NullTime
		if err := rows.Scan(&sum.ExecutionID, &sum.SkillName, &status,
			&sum.StepsTotal, &sum.StepsFailed, &sum.StartedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}
		sum.Status = models.RunStatus(status)
		if endedAt.Valid {
			sum.EndedAt = endedAt.Time
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}
