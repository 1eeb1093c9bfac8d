package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tidalhook/shelfctl/internal/catalog"
	"github.com/tidalhook/shelfctl/internal/engine"
	"github.com/tidalhook/shelfctl/internal/shared"
)

// stubSource serves one fixed page.
type stubSource struct {
	items []catalog.Item
}

func (s *stubSource) Items(ctx context.Context) ([]catalog.Item, error) {
	return s.items, nil
}

func (s *stubSource) Pagination(ctx context.Context) (catalog.PageState, error) {
	return catalog.PageState{LastPage: true}, nil
}

func (s *stubSource) Advance(ctx context.Context) error {
	return errors.New("single page")
}

type countingActuator struct {
	calls int
}

func (a *countingActuator) Actuate(ctx context.Context, item catalog.Item, enable bool) error {
	a.calls++
	return nil
}

// failingWriter rejects every write.
type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("write refused")
}

func testRunner(t *testing.T, source catalog.Source, actuator catalog.Actuator) (*Runner, *bytes.Buffer) {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Source:   source,
		Actuator: actuator,
		Output:   output,
		DB:       db,
	})
	return runner, output
}

func runApp(t *testing.T, r *Runner, args ...string) error {
	t.Helper()
	app := &cli.Command{Name: "shelfctl", Commands: r.register()}
	return app.Run(context.Background(), append([]string{"shelfctl"}, args...))
}

func TestNewRunner(t *testing.T) {
	t.Run("with all dependencies provided", func(t *testing.T) {
		config := shared.DefaultConfig()
		logger := shared.NewLogger(nil)
		output := &bytes.Buffer{}
		httpClient := &http.Client{}
		source := &stubSource{}
		actuator := &countingActuator{}

		runner := NewRunner(RunnerOpts{
			Config:     config,
			Logger:     logger,
			Output:     output,
			HTTPClient: httpClient,
			Source:     source,
			Actuator:   actuator,
		})

		if runner.config != config {
			t.Error("expected config to be set")
		}
		if runner.logger != logger {
			t.Error("expected logger to be set")
		}
		if runner.output != output {
			t.Error("expected output to be set")
		}
		if runner.httpClient != httpClient {
			t.Error("expected httpClient to be set")
		}
		if runner.source != source {
			t.Error("expected source to be set")
		}
		if runner.actuator != actuator {
			t.Error("expected actuator to be set")
		}
	})

	t.Run("with nil dependencies uses defaults", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})

		if runner.config == nil {
			t.Error("expected default config")
		}
		if runner.logger == nil {
			t.Error("expected default logger")
		}
		if runner.output != os.Stdout {
			t.Error("expected output to default to os.Stdout")
		}
		if runner.httpClient != http.DefaultClient {
			t.Error("expected httpClient to default to http.DefaultClient")
		}
	})
}

func TestWriteJSON(t *testing.T) {
	t.Run("pretty", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
			t.Fatalf("writeJSON() error: %v", err)
		}
		if !strings.Contains(output.String(), `"key": "value"`) {
			t.Errorf("output = %q", output.String())
		}
	})

	t.Run("compact", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
			t.Fatalf("writeJSON() error: %v", err)
		}
		if output.String() != `{"key":"value"}`+"\n" {
			t.Errorf("output = %q", output.String())
		}
	})

	t.Run("marshal failure", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
		if err := runner.writeJSON(make(chan int), false); err == nil {
			t.Error("expected marshal error")
		}
	})

	t.Run("write failure", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Output: failingWriter{}})
		if err := runner.writeJSON("x", false); err == nil {
			t.Error("expected write error")
		}
	})
}

func TestWritePlain(t *testing.T) {
	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Output: output})

	if err := runner.writePlain("hello %s", "world"); err != nil {
		t.Fatalf("writePlain() error: %v", err)
	}
	if output.String() != "hello world" {
		t.Errorf("output = %q", output.String())
	}

	runner = NewRunner(RunnerOpts{Output: failingWriter{}})
	if err := runner.writePlain("test"); err == nil {
		t.Error("expected write error")
	}
}

func TestPolicyFromFlags(t *testing.T) {
	capture := func(t *testing.T, args ...string) (engine.Policy, error) {
		t.Helper()
		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

		var policy engine.Policy
		var policyErr error
		cmd := &cli.Command{
			Name:  "probe",
			Flags: runFlags(),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				policy, policyErr = runner.policyFromFlags(cmd)
				return nil
			},
		}
		if err := cmd.Run(context.Background(), append([]string{"probe"}, args...)); err != nil {
			t.Fatalf("command error: %v", err)
		}
		return policy, policyErr
	}

	t.Run("config defaults apply", func(t *testing.T) {
		policy, err := capture(t, "--desired", "disable")
		if err != nil {
			t.Fatalf("policyFromFlags() error: %v", err)
		}
		if policy.Desired != engine.DesiredDisable {
			t.Errorf("Desired = %q", policy.Desired)
		}
		if policy.Concurrency != 5 || policy.MaxRetries != 3 {
			t.Errorf("pacing = %d/%d, want config defaults 5/3", policy.Concurrency, policy.MaxRetries)
		}
	})

	t.Run("flags override config", func(t *testing.T) {
		policy, err := capture(t,
			"--desired", "enable",
			"--concurrency", "2",
			"--max-retries", "0",
			"--category", "APP",
			"--category", "ebook",
			"--exclude", "lego",
			"--dry-run",
		)
		if err != nil {
			t.Fatalf("policyFromFlags() error: %v", err)
		}
		if policy.Concurrency != 2 || policy.MaxRetries != 0 {
			t.Errorf("pacing = %d/%d", policy.Concurrency, policy.MaxRetries)
		}
		if len(policy.Categories) != 2 || policy.Categories[0] != catalog.CategoryApp || policy.Categories[1] != catalog.CategoryEbook {
			t.Errorf("Categories = %v", policy.Categories)
		}
		if !policy.DryRun || len(policy.Exclude) != 1 {
			t.Errorf("policy = %+v", policy)
		}
	})

	t.Run("invalid desired state", func(t *testing.T) {
		if _, err := capture(t, "--desired", "sideways"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("error = %v, want ErrInvalidFlag", err)
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		if _, err := capture(t, "--desired", "disable", "--category", "widget"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("error = %v, want ErrInvalidFlag", err)
		}
	})
}

func TestScanCommand(t *testing.T) {
	source := &stubSource{items: []catalog.Item{
		{ID: "1", Title: "Alpha", Category: catalog.CategoryApp, Enabled: true, Handle: "tok-1"},
		{ID: "2", Title: "Beta", Category: catalog.CategoryApp, Enabled: false, Handle: "tok-2"},
	}}
	actuator := &countingActuator{}
	runner, output := testRunner(t, source, actuator)

	if err := runApp(t, runner, "scan", "--desired", "disable", "--quiet"); err != nil {
		t.Fatalf("scan error: %v", err)
	}

	if actuator.calls != 0 {
		t.Errorf("scan actuated %d times", actuator.calls)
	}
	if !strings.Contains(output.String(), "Dry Run Complete") {
		t.Errorf("output missing summary:\n%s", output.String())
	}

	// the run was journaled
	var runs int
	if err := runner.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&runs); err != nil {
		t.Fatal(err)
	}
	if runs != 1 {
		t.Errorf("journaled %d runs, want 1", runs)
	}
}

func TestRunCommandJSONSummary(t *testing.T) {
	source := &stubSource{items: []catalog.Item{
		{ID: "1", Title: "Alpha", Category: catalog.CategoryApp, Enabled: true, Handle: "tok-1"},
	}}
	runner, output := testRunner(t, source, &countingActuator{})

	if err := runApp(t, runner, "run", "--desired", "disable", "--quiet", "--format", "json"); err != nil {
		t.Fatalf("run error: %v", err)
	}

	var payload struct {
		RunID  string `json:"run_id"`
		DryRun bool   `json:"dry_run"`
		Stats  struct {
			Toggled int `json:"toggled"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(output.Bytes(), &payload); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, output.String())
	}
	if payload.RunID == "" || payload.DryRun {
		t.Errorf("payload = %+v", payload)
	}
	if payload.Stats.Toggled != 1 {
		t.Errorf("Toggled = %d, want 1", payload.Stats.Toggled)
	}
}

func TestRunCommandActuates(t *testing.T) {
	source := &stubSource{items: []catalog.Item{
		{ID: "1", Title: "Alpha", Category: catalog.CategoryApp, Enabled: true, Handle: "tok-1"},
		{ID: "2", Title: "Beta", Category: catalog.CategoryEbook, Enabled: true, Handle: "tok-2"},
	}}
	actuator := &countingActuator{}
	runner, _ := testRunner(t, source, actuator)

	if err := runApp(t, runner, "run", "--desired", "disable", "--quiet", "--category", "APP"); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if actuator.calls != 1 {
		t.Errorf("actuated %d items, want 1 (category filter)", actuator.calls)
	}
}

func TestRunCommandReportsPageLines(t *testing.T) {
	source := &stubSource{items: []catalog.Item{
		{ID: "1", Title: "Alpha", Category: catalog.CategoryApp, Enabled: true, Handle: "tok-1"},
	}}
	runner, output := testRunner(t, source, &countingActuator{})

	if err := runApp(t, runner, "run", "--desired", "disable"); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !strings.Contains(output.String(), "page 1: 1 toggled, 0 skipped, 0 failed") {
		t.Errorf("output missing page line:\n%s", output.String())
	}
}

func TestRunCommandDoesNotLeakGoroutines(t *testing.T) {
	source := &stubSource{items: []catalog.Item{
		{ID: "1", Title: "Alpha", Category: catalog.CategoryApp, Enabled: true, Handle: "tok-1"},
	}}
	runner, _ := testRunner(t, source, &countingActuator{})

	// the first run opens the journal and spawns any lazy machinery
	if err := runApp(t, runner, "run", "--desired", "disable", "--quiet"); err != nil {
		t.Fatalf("run error: %v", err)
	}
	before := runtime.NumGoroutine()

	for i := 0; i < 5; i++ {
		if err := runApp(t, runner, "run", "--desired", "disable", "--quiet"); err != nil {
			t.Fatalf("run error: %v", err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines = %d, want <= %d after runs complete", runtime.NumGoroutine(), before)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHistoryCommands(t *testing.T) {
	source := &stubSource{items: []catalog.Item{
		{ID: "1", Title: "Alpha", Category: catalog.CategoryApp, Enabled: true, Handle: "tok-1"},
	}}
	runner, output := testRunner(t, source, &countingActuator{})

	if err := runApp(t, runner, "run", "--desired", "disable", "--quiet"); err != nil {
		t.Fatalf("run error: %v", err)
	}
	output.Reset()

	if err := runApp(t, runner, "history", "list"); err != nil {
		t.Fatalf("history list error: %v", err)
	}
	if !strings.Contains(output.String(), "disable") || !strings.Contains(output.String(), "toggled 1") {
		t.Errorf("history output:\n%s", output.String())
	}
	output.Reset()

	if err := runApp(t, runner, "history", "failures", "no-such-run"); err != nil {
		t.Fatalf("history failures error: %v", err)
	}
	if !strings.Contains(output.String(), "no failures recorded") {
		t.Errorf("failures output:\n%s", output.String())
	}

	// a missing run ID is an argument error
	err := runApp(t, runner, "history", "failures")
	if err == nil || !errors.Is(err, shared.ErrMissingArgument) {
		t.Errorf("history failures without args = %v, want ErrMissingArgument", err)
	}
}

func TestHistoryListEmpty(t *testing.T) {
	runner, output := testRunner(t, &stubSource{}, nil)

	if err := runApp(t, runner, "history", "list"); err != nil {
		t.Fatalf("history list error: %v", err)
	}
	if !strings.Contains(output.String(), "no journaled runs") {
		t.Errorf("output:\n%s", output.String())
	}
}
