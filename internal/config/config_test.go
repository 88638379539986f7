package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddr != "127.0.0.1:8765" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.TranscriptionProvider != ProviderOpenAI {
		t.Errorf("TranscriptionProvider = %q", cfg.TranscriptionProvider)
	}
	if cfg.SampleRate != 24000 {
		t.Errorf("SampleRate = %d", cfg.SampleRate)
	}
	if cfg.ResponseMode != ModeLineCommands {
		t.Errorf("ResponseMode = %q", cfg.ResponseMode)
	}
	if cfg.SummaryModel != "openai/gpt-4o-mini" {
		t.Errorf("SummaryModel = %q", cfg.SummaryModel)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen_addr: "0.0.0.0:9000"
language: ja
transcription_provider: deepgram
transcription_model: nova-2
sample_rate: 16000
response_mode: whole-text
backup_interval: 30m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddr != "0.0.0.0:9000" || cfg.Language != "ja" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.TranscriptionProvider != ProviderDeepgram || cfg.TranscriptionModel != "nova-2" {
		t.Errorf("transcription config = %q/%q", cfg.TranscriptionProvider, cfg.TranscriptionModel)
	}
	if cfg.ResponseMode != ModeWholeText {
		t.Errorf("ResponseMode = %q", cfg.ResponseMode)
	}
	if cfg.ParsedBackupInterval() != 30*time.Minute {
		t.Errorf("backup interval = %v", cfg.ParsedBackupInterval())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBPath != "data/talkedit.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: [not a string"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvPrefix+"LISTEN_ADDR", "localhost:7777")
	t.Setenv(EnvPrefix+"SAMPLE_RATE", "16000")
	t.Setenv(EnvPrefix+"RESPONSE_MODE", ModeWholeText)
	t.Setenv(EnvPrefix+"OPENAI_API_KEY", "sk-test")

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddr != "localhost:7777" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("SampleRate = %d", cfg.SampleRate)
	}
	if cfg.ResponseMode != ModeWholeText {
		t.Errorf("ResponseMode = %q", cfg.ResponseMode)
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Errorf("OpenAIAPIKey not loaded from env")
	}
}

func TestValidationWarnings(t *testing.T) {
	t.Setenv(EnvPrefix+"TRANSCRIPTION_PROVIDER", "whisper-cpp")
	t.Setenv(EnvPrefix+"RESPONSE_MODE", "freeform")
	t.Setenv(EnvPrefix+"BACKUP_INTERVAL", "soonish")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	wantFragments := []string{"transcription_provider", "response_mode", "backup_interval", "OpenAI API key"}
	for _, fragment := range wantFragments {
		found := false
		for _, w := range warnings {
			if strings.Contains(w, fragment) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no warning mentioning %q in %v", fragment, warnings)
		}
	}

	// Invalid values fall back rather than failing startup.
	if cfg.TranscriptionProvider != ProviderOpenAI || cfg.ResponseMode != ModeLineCommands {
		t.Errorf("fallbacks not applied: %+v", cfg)
	}
	if cfg.ParsedBackupInterval() != time.Hour {
		t.Errorf("backup fallback = %v", cfg.ParsedBackupInterval())
	}
}

func TestDeepgramKeyWarning(t *testing.T) {
	t.Setenv(EnvPrefix+"TRANSCRIPTION_PROVIDER", ProviderDeepgram)

	_, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	found := false
	for _, w := range warnings {
		if strings.Contains(w, "Deepgram") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Deepgram key warning, got %v", warnings)
	}
}
