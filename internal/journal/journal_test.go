package journal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tidalhook/shelfctl/internal/catalog"
	"github.com/tidalhook/shelfctl/internal/engine"
	"github.com/tidalhook/shelfctl/internal/shared"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return New(db)
}

func testResult(id string, startedAt time.Time) *engine.RunResult {
	return &engine.RunResult{
		RunID:      id,
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(42 * time.Second),
		Policy: engine.Policy{
			Desired:    engine.DesiredDisable,
			Categories: []catalog.Category{catalog.CategoryApp},
			Exclude:    []string{"lego"},
		},
		Pages: 4,
		Stats: engine.Stats{Toggled: 10, Skipped: 2, Failed: 1, Retried: 3},
		Failures: []engine.ItemFailure{
			{Key: "item-7", Title: "Broken App", Category: catalog.CategoryApp, Reason: "retries exhausted: transient: status 503"},
		},
	}
}

func TestJournalRecordAndList(t *testing.T) {
	j := newTestJournal(t)
	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if err := j.Record(testResult("run-1", started)); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := j.Record(testResult("run-2", started.Add(time.Hour))); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	records, err := j.List(0)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(records))
	}

	// newest first
	if records[0].ID != "run-2" || records[1].ID != "run-1" {
		t.Errorf("order = [%s, %s], want [run-2, run-1]", records[0].ID, records[1].ID)
	}

	rec := records[1]
	if rec.Desired != "disable" {
		t.Errorf("Desired = %q", rec.Desired)
	}
	if rec.Pages != 4 {
		t.Errorf("Pages = %d, want 4", rec.Pages)
	}
	if rec.Stats.Toggled != 10 || rec.Stats.Failed != 1 || rec.Stats.Retried != 3 {
		t.Errorf("Stats = %+v", rec.Stats)
	}
	if rec.DryRun {
		t.Error("DryRun = true")
	}

	var snapshot map[string]any
	if err := json.Unmarshal([]byte(rec.PolicyJSON), &snapshot); err != nil {
		t.Fatalf("policy snapshot is not valid JSON: %v", err)
	}
	if snapshot["desired"] != "disable" {
		t.Errorf("snapshot desired = %v", snapshot["desired"])
	}
}

func TestJournalListLimit(t *testing.T) {
	j := newTestJournal(t)
	started := time.Now().UTC()

	for i := 0; i < 5; i++ {
		result := testResult("", started.Add(time.Duration(i)*time.Minute))
		result.RunID = shared.GenerateID()
		result.Failures = nil
		if err := j.Record(result); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}

	records, err := j.List(3)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("List(3) returned %d records", len(records))
	}
}

func TestJournalFailures(t *testing.T) {
	j := newTestJournal(t)
	if err := j.Record(testResult("run-1", time.Now().UTC())); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	failures, err := j.Failures("run-1")
	if err != nil {
		t.Fatalf("Failures() error: %v", err)
	}
	if len(failures) != 1 {
		t.Fatalf("Failures() returned %d records, want 1", len(failures))
	}

	f := failures[0]
	if f.RunID != "run-1" || f.ItemKey != "item-7" || f.Title != "Broken App" {
		t.Errorf("failure = %+v", f)
	}
	if f.Category != "APP" {
		t.Errorf("Category = %q, want APP", f.Category)
	}

	// unknown run yields an empty set, not an error
	failures, err = j.Failures("no-such-run")
	if err != nil {
		t.Fatalf("Failures() error: %v", err)
	}
	if len(failures) != 0 {
		t.Errorf("Failures(no-such-run) returned %d records", len(failures))
	}
}
