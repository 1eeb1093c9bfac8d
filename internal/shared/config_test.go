package shared

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Shelf.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q", config.Shelf.BaseURL)
	}
	if config.Shelf.Actuator != "" {
		t.Errorf("Actuator = %q, want empty (probe)", config.Shelf.Actuator)
	}
	if config.Run.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want 5", config.Run.Concurrency)
	}
	if config.Run.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.Run.MaxRetries)
	}
	if config.Run.RateLimit != 2.0 {
		t.Errorf("RateLimit = %v, want 2.0", config.Run.RateLimit)
	}
	if config.Run.VerifyTimeoutMs != 3000 {
		t.Errorf("VerifyTimeoutMs = %d, want 3000", config.Run.VerifyTimeoutMs)
	}
	if config.Run.LoadTimeoutMs != 15000 {
		t.Errorf("LoadTimeoutMs = %d, want 15000", config.Run.LoadTimeoutMs)
	}
	if config.Journal.Path != "shelfctl.db" {
		t.Errorf("Journal.Path = %q", config.Journal.Path)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[shelf]
base_url = "https://shelf.example.com"
headers_path = "session.txt"
actuator = "toggle"

[run]
concurrency = 10
max_retries = 1

[journal]
path = "runs.db"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if config.Shelf.BaseURL != "https://shelf.example.com" {
		t.Errorf("BaseURL = %q", config.Shelf.BaseURL)
	}
	if config.Shelf.Actuator != "toggle" {
		t.Errorf("Actuator = %q", config.Shelf.Actuator)
	}
	if config.Run.Concurrency != 10 || config.Run.MaxRetries != 1 {
		t.Errorf("Run = %+v", config.Run)
	}
	if config.Journal.Path != "runs.db" {
		t.Errorf("Journal.Path = %q", config.Journal.Path)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("LoadConfig() on a missing file returned nil error")
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() on invalid TOML returned nil error")
	}
}

func TestCreateConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := CreateConfigFile(path); err != nil {
		t.Fatalf("CreateConfigFile() error: %v", err)
	}

	// the created file parses back to the defaults
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if config.Run.Concurrency != DefaultConfig().Run.Concurrency {
		t.Errorf("created config Concurrency = %d", config.Run.Concurrency)
	}

	// refuses to overwrite
	if err := CreateConfigFile(path); err == nil {
		t.Error("CreateConfigFile() overwrote an existing file")
	}
}
