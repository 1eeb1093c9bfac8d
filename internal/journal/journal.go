// Package journal persists an audit history of completed runs.
//
// The journal is append-only: one row per run plus one row per failed item,
// written once when a run finishes. It records outcomes for later inspection
// and never feeds state back into the engine: a restarted process always
// begins a fresh run.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidalhook/shelfctl/internal/engine"
)

// RunRecord is one journaled run.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Desired    string
	DryRun     bool
	Pages      int
	Stats      engine.Stats
	PolicyJSON string
}

// FailureRecord is one journaled item failure.
type FailureRecord struct {
	RunID    string
	ItemKey  string
	Title    string
	Category string
	Reason   string
}

// Journal provides append and query access to the run history database.
type Journal struct {
	db *sql.DB
}

// New creates a journal over an open, migrated database.
func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Record appends a finished run and its failures in one transaction.
func (j *Journal) Record(result *engine.RunResult) error {
	policyJSON, err := json.Marshal(policySnapshot(result.Policy))
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, started_at, finished_at, desired_state, dry_run, pages, toggled, skipped, failed, retried, policy_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.StartedAt,
		result.FinishedAt,
		string(result.Policy.Desired),
		result.Policy.DryRun,
		result.Pages,
		result.Stats.Toggled,
		result.Stats.Skipped,
		result.Stats.Failed,
		result.Stats.Retried,
		string(policyJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, failure := range result.Failures {
		_, err = tx.Exec(`
			INSERT INTO run_failures (run_id, item_key, item_title, category, reason)
			VALUES (?, ?, ?, ?, ?)`,
			result.RunID, failure.Key, failure.Title, failure.Category.String(), failure.Reason,
		)
		if err != nil {
			return fmt.Errorf("failed to insert failure: %w", err)
		}
	}

	return tx.Commit()
}

// List returns the most recent runs, newest first.
func (j *Journal) List(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.Query(`
		SELECT id, started_at, finished_at, desired_state, dry_run, pages, toggled, skipped, failed, retried, policy_json
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(
			&rec.ID, &rec.StartedAt, &rec.FinishedAt, &rec.Desired, &rec.DryRun,
			&rec.Pages, &rec.Stats.Toggled, &rec.Stats.Skipped, &rec.Stats.Failed,
			&rec.Stats.Retried, &rec.PolicyJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Failures returns the failed items recorded for one run.
func (j *Journal) Failures(runID string) ([]FailureRecord, error) {
	rows, err := j.db.Query(`
		SELECT run_id, item_key, item_title, category, reason
		FROM run_failures WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var records []FailureRecord
	for rows.Next() {
		var rec FailureRecord
		if err := rows.Scan(&rec.RunID, &rec.ItemKey, &rec.Title, &rec.Category, &rec.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// policySnapshot is the audit form of a policy: selection knobs only, in
// stable JSON field names.
func policySnapshot(p engine.Policy) map[string]any {
	categories := make([]string, 0, len(p.Categories))
	for _, c := range p.Categories {
		categories = append(categories, c.String())
	}

	return map[string]any{
		"desired":        string(p.Desired),
		"categories":     categories,
		"include":        p.Include,
		"exclude":        p.Exclude,
		"case_sensitive": p.CaseSensitive,
		"dry_run":        p.DryRun,
		"concurrency":    p.Concurrency,
		"max_retries":    p.MaxRetries,
	}
}
