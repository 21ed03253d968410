// Package learning manages the shared SQLite store behind the failure
// history, learned fixes, confirmation preferences, execution summaries and
// rolling heal statistics.
//
// The store is mutated by many concurrent executions. SQLite in WAL mode
// with a busy timeout provides the atomic read-modify-write discipline the
// engine requires: racing writers may lose an aggregate increment, but a
// write never leaves a document structurally invalid.
package learning

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/skillrunner/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Store manages the SQLite database shared across executions.
type Store struct {
	db     *sql.DB
	dbPath string

	// Retention knobs; pruning runs on write, not via a separate sweep.
	keepFailuresDays   int
	maxFailuresPerTool int
	keepExecutionsDays int
}

// Option configures a Store.
type Option func(*Store)

// WithRetention sets the retention windows applied on write.
func WithRetention(keepFailuresDays, maxFailuresPerTool, keepExecutionsDays int) Option {
	return func(s *Store) {
		s.keepFailuresDays = keepFailuresDays
		s.maxFailuresPerTool = maxFailuresPerTool
		s.keepExecutionsDays = keepExecutionsDays
	}
}

// NewStore opens (creating if needed) the database at dbPath and initializes
// the schema. Use ":memory:" for tests.
func NewStore(dbPath string, opts ...Option) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// busy_timeout must come first so later pragmas wait on locks held by
	// concurrent initializers of the same file.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	store := &Store{
		db:                 db,
		dbPath:             dbPath,
		keepFailuresDays:   90,
		maxFailuresPerTool: 500,
		keepExecutionsDays: 90,
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := execWithRetry(db, schemaSQL, 5, 10*time.Millisecond); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

// execWithRetry executes SQL with exponential backoff on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s != nil && s.db != nil {
		return s.db.Close()
	}
	return nil
}

// signatureHexRe and signatureDigitsRe collapse volatile numerics so
// signature matching survives ports, PIDs, hex ids and timestamps embedded
// in error text. Hex literals go first so 0xdeadbeef collapses whole
// instead of leaving its letters behind.
var (
	signatureHexRe    = regexp.MustCompile(`0x[0-9a-f]+`)
	signatureDigitsRe = regexp.MustCompile(`[0-9]+`)
)

// Signature normalizes error text into a stable failure signature used to
// key learned fixes.
func Signature(errorText string) string {
	sig := strings.ToLower(strings.TrimSpace(errorText))
	sig = signatureHexRe.ReplaceAllString(sig, "#")
	sig = signatureDigitsRe.ReplaceAllString(sig, "#")
	sig = strings.Join(strings.Fields(sig), " ")
	if len(sig) > 160 {
		sig = sig[:160]
	}
	return sig
}

// AppendFailure appends a failure record and prunes old rows per the
// retention configuration. Records are never mutated after append.
func (s *Store) AppendFailure(ctx context.Context, rec *models.FailureRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failures (tool_name, classification, error_snippet, remediation, success, latency_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ToolName, string(rec.Classification), rec.ErrorSnippet, rec.Remediation,
		boolToInt(rec.Success), rec.Latency.Milliseconds(), ts)
	if err != nil {
		return fmt.Errorf("append failure: %w", err)
	}
	return s.pruneFailures(ctx, rec.ToolName)
}

// pruneFailures enforces retention: age window plus per-tool cap.
func (s *Store) pruneFailures(ctx context.Context, toolName string) error {
	if s.keepFailuresDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -s.keepFailuresDays)
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM failures WHERE timestamp < ?`, cutoff); err != nil {
			return fmt.Errorf("prune failures by age: %w", err)
		}
	}
	if s.maxFailuresPerTool > 0 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM failures WHERE tool_name = ? AND id NOT IN (
				SELECT id FROM failures WHERE tool_name = ? ORDER BY id DESC LIMIT ?
			)`, toolName, toolName, s.maxFailuresPerTool); err != nil {
			return fmt.Errorf("prune failures by count: %w", err)
		}
	}
	return nil
}

// QueryFailures returns recent failure records for a tool, newest first.
// An empty toolName matches all tools.
func (s *Store) QueryFailures(ctx context.Context, toolName string, limit int) ([]models.FailureRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, tool_name, classification, error_snippet, remediation, success, latency_ms, timestamp
		FROM failures`
	args := []interface{}{}
	if toolName != "" {
		query += ` WHERE tool_name = ?`
		args = append(args, toolName)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var records []models.FailureRecord
	for rows.Next() {
		var rec models.FailureRecord
		var class string
		var success, latencyMS int64
		if err := rows.Scan(&rec.ID, &rec.ToolName, &class, &rec.ErrorSnippet,
			&rec.Remediation, &success, &latencyMS, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan failure row: %w", err)
		}
		rec.Classification = models.Classification(class)
		rec.Success = success != 0
		rec.Latency = time.Duration(latencyMS) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CheckKnownIssues returns learned fixes whose signature matches the given
// error text for the tool, most successful first.
func (s *Store) CheckKnownIssues(ctx context.Context, toolName, errorText string) ([]models.LearnedFix, error) {
	sig := Signature(errorText)
	rows, err := s.db.QueryContext(ctx,
		`SELECT tool_name, signature, remediation, success_count, last_used, created_at
		 FROM learned_fixes WHERE tool_name = ? ORDER BY success_count DESC`, toolName)
	if err != nil {
		return nil, fmt.Errorf("query learned fixes: %w", err)
	}
	defer rows.Close()

	var matches []models.LearnedFix
	for rows.Next() {
		var fix models.LearnedFix
		if err := rows.Scan(&fix.ToolName, &fix.Signature, &fix.Remediation,
			&fix.SuccessCount, &fix.LastUsed, &fix.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan learned fix: %w", err)
		}
		if fix.Signature == sig || strings.Contains(sig, fix.Signature) {
			matches = append(matches, fix)
		}
	}
	return matches, rows.Err()
}

// RecordFixSuccess upserts a learned fix after a remediation-led retry
// succeeded, incrementing its success count.
func (s *Store) RecordFixSuccess(ctx context.Context, toolName, errorText, remediation string) error {
	sig := Signature(errorText)
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learned_fixes (tool_name, signature, remediation, success_count, last_used, created_at)
		 VALUES (?, ?, ?, 1, ?, ?)
		 ON CONFLICT(tool_name, signature) DO UPDATE SET
			remediation = excluded.remediation,
			success_count = success_count + 1,
			last_used = excluded.last_used`,
		toolName, sig, remediation, now, now)
	if err != nil {
		return fmt.Errorf("record fix success: %w", err)
	}
	return nil
}

// GetPreference returns a remembered confirmation selection for
// (skill, step), or empty string when none is stored.
func (s *Store) GetPreference(ctx context.Context, skillName, stepName string) (string, error) {
	var selected string
	err := s.db.QueryRowContext(ctx,
		`SELECT selected FROM confirmation_preferences WHERE skill_name = ? AND step_name = ?`,
		skillName, stepName).Scan(&selected)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get preference: %w", err)
	}
	return selected, nil
}

// SetPreference persists a confirmation selection for future runs.
func (s *Store) SetPreference(ctx context.Context, skillName, stepName, selected string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO confirmation_preferences (skill_name, step_name, selected, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(skill_name, step_name) DO UPDATE SET
			selected = excluded.selected,
			updated_at = excluded.updated_at`,
		skillName, stepName, selected, now, now)
	if err != nil {
		return fmt.Errorf("set preference: %w", err)
	}
	return nil
}

// ClearPreferences removes remembered selections. An empty skillName clears
// everything.
func (s *Store) ClearPreferences(ctx context.Context, skillName string) error {
	var err error
	if skillName == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM confirmation_preferences`)
	} else {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM confirmation_preferences WHERE skill_name = ?`, skillName)
	}
	if err != nil {
		return fmt.Errorf("clear preferences: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
