package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Setenv("MV_TEST_DB", "vault.db")
	path := writeConfig(t, `
database:
  path: ${MV_TEST_DB}
media:
  base_dir: ./blobs
  max_upload_size: 1048576
extraction:
  ocr:
    engines: [tesseract]
    language: por
  timeout: 30s
  max_concurrent: 2
search:
  max_results: 5
gateway:
  address: ${MV_TEST_ADDR:-127.0.0.1:9000}
sweeper:
  schedule: "@every 10m"
`)

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile() error = %v", err)
	}

	dir := filepath.Dir(path)
	if cfg.Database.Path != filepath.Join(dir, "vault.db") {
		t.Errorf("database.path = %q, want resolved env value", cfg.Database.Path)
	}
	if cfg.Media.BaseDir != filepath.Join(dir, "blobs") {
		t.Errorf("media.base_dir = %q", cfg.Media.BaseDir)
	}
	if cfg.Media.MaxUploadSize != 1<<20 {
		t.Errorf("media.max_upload_size = %d", cfg.Media.MaxUploadSize)
	}
	if got := cfg.Extraction.OCR.Engines; len(got) != 1 || got[0] != EngineTesseract {
		t.Errorf("ocr.engines = %v", got)
	}
	if cfg.Extraction.OCR.Language != "por" {
		t.Errorf("ocr.language = %q", cfg.Extraction.OCR.Language)
	}
	if cfg.Extraction.Timeout != 30*time.Second || cfg.Extraction.MaxConcurrent != 2 {
		t.Errorf("extraction bounds = %v/%d", cfg.Extraction.Timeout, cfg.Extraction.MaxConcurrent)
	}
	if cfg.Extraction.MetadataTimeout != 10*time.Second {
		t.Errorf("metadata_timeout = %v, want default", cfg.Extraction.MetadataTimeout)
	}
	if cfg.Search.MaxResults != 5 || cfg.Search.SnippetTokens != 32 {
		t.Errorf("search = %+v", cfg.Search)
	}
	if cfg.Gateway.Address != "127.0.0.1:9000" {
		t.Errorf("gateway.address = %q, want env default", cfg.Gateway.Address)
	}
	if !cfg.Sweeper.Enabled || cfg.Sweeper.Schedule != "@every 10m" {
		t.Errorf("sweeper = %+v, want enabled with new schedule", cfg.Sweeper)
	}

	ingestCfg := cfg.Extraction.Ingest()
	if ingestCfg.ExtractTimeout != 30*time.Second || ingestCfg.SentimentTimeout != 5*time.Second {
		t.Errorf("Ingest() = %+v", ingestCfg)
	}
}

func TestLoadConfigFromFile_RequiredVarMissing(t *testing.T) {
	path := writeConfig(t, "database:\n  path: ${MV_TEST_UNSET_VAR:?set the database path}\n")
	_, err := LoadConfigFromFile(path)
	if err == nil || !strings.Contains(err.Error(), "MV_TEST_UNSET_VAR - set the database path") {
		t.Errorf("LoadConfigFromFile() error = %v, want missing variable", err)
	}
}

func TestLoadConfigFromFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad yaml", "database: [", "parsing config YAML"},
		{"bad driver", "database:\n  driver: postgres\n", "database.driver"},
		{"bad engine", "extraction:\n  ocr:\n    engines: [abbyy]\n", "unknown engine"},
		{"bad sentiment", "extraction:\n  sentiment:\n    engine: vader\n", "extraction.sentiment.engine"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"bad format", "logging:\n  format: xml\n", "logging.format"},
		{"absolute media url", "media:\n  base_url: https://cdn.example.com/media\n", "media.base_url"},
		{"media url under api", "media:\n  base_url: /api/files\n", "conflicts with the /api route"},
		{"media url at root", "media:\n  base_url: /\n", "conflicts with the / route"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFromFile(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadConfigFromFile() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestParseConfig_SweeperExplicitlyDisabled(t *testing.T) {
	cfg, err := ParseConfig([]byte("sweeper:\n  enabled: false\n"))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.Sweeper.Enabled {
		t.Error("sweeper.enabled = true, want false")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("MV_TEST_SET", "value")

	tests := []struct {
		in   string
		want string
	}{
		{"${MV_TEST_SET}", "value"},
		{"$MV_TEST_SET", "value"},
		{"${MV_TEST_NOPE:-fallback}", "fallback"},
		{"${MV_TEST_NOPE}", "${MV_TEST_NOPE}"},
		{"${MV_TEST_SET:-fallback}", "value"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		got, err := expandEnvVars(tt.in)
		if err != nil {
			t.Errorf("expandEnvVars(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSaveConfigToFile_NeverWritesKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Extraction.OpenAI.APIKey = "sk-secret-value"

	if err := SaveConfigToFile(cfg, path); err != nil {
		t.Fatalf("SaveConfigToFile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if strings.Contains(string(data), "sk-secret-value") {
		t.Error("saved config contains the API key")
	}
	if cfg.Extraction.OpenAI.APIKey != "sk-secret-value" {
		t.Error("SaveConfigToFile() mutated the caller's config")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %04o, want 0600", info.Mode().Perm())
	}

	reloaded, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig(saved) error = %v", err)
	}
	if reloaded.Extraction.Timeout != cfg.Extraction.Timeout || reloaded.Search != cfg.Search {
		t.Errorf("reloaded config differs: %+v", reloaded.Extraction)
	}
}

func TestResolvePathFromConfig(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct {
		path, dir, want string
	}{
		{"", "/etc/mv", ""},
		{"/abs/db", "/etc/mv", "/abs/db"},
		{"data/db", "/etc/mv", "/etc/mv/data/db"},
		{"~/mv.db", "/etc/mv", filepath.Join(home, "mv.db")},
	}
	for _, tt := range tests {
		if got := resolvePathFromConfig(tt.path, tt.dir); got != tt.want {
			t.Errorf("resolvePathFromConfig(%q, %q) = %q, want %q", tt.path, tt.dir, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf, false)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("json logger output = %q", out)
	}

	buf.Reset()
	logger = NewLogger(LoggingConfig{Level: "error"}, &buf, true)
	logger.Debug("debug line")
	if !strings.Contains(buf.String(), "msg=\"debug line\"") {
		t.Errorf("verbose text logger output = %q", buf.String())
	}
}

func TestSweepGraceFloor(t *testing.T) {
	cfg := DefaultConfig()
	// 60s extract + 5s sentiment beats 10s metadata; 5s busy timeout.
	if got, want := cfg.SweepGraceFloor(), 70*time.Second; got != want {
		t.Errorf("SweepGraceFloor() = %v, want %v", got, want)
	}

	cfg.Database.Driver = DriverMemory
	cfg.Extraction.MetadataTimeout = 2 * time.Minute
	if got, want := cfg.SweepGraceFloor(), 2*time.Minute; got != want {
		t.Errorf("SweepGraceFloor() = %v, want %v", got, want)
	}
}
