package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all talkedit environment variables.
const EnvPrefix = "TALKEDIT_"

// Transcription providers.
const (
	ProviderOpenAI   = "openai"
	ProviderDeepgram = "deepgram"
)

// Rewrite response modes.
const (
	ModeLineCommands = "line-commands"
	ModeWholeText    = "whole-text"
)

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr            string `yaml:"listen_addr"`
	DBPath                string `yaml:"db_path"`
	AudioDir              string `yaml:"audio_dir"`
	ExportDir             string `yaml:"export_dir"`
	Language              string `yaml:"language"`
	TranscriptionProvider string `yaml:"transcription_provider"`
	TranscriptionModel    string `yaml:"transcription_model"`
	SampleRate            int    `yaml:"sample_rate"`
	RewriteModel          string `yaml:"rewrite_model"`
	ResponseMode          string `yaml:"response_mode"`
	SummaryModel          string `yaml:"summary_model"`
	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`
	BackupInterval        string `yaml:"backup_interval"`

	// Secrets come from env vars only and are never serialized to YAML.
	OpenAIAPIKey    string `yaml:"-"`
	DeepgramAPIKey  string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:            "127.0.0.1:8765",
		DBPath:                "data/talkedit.db",
		AudioDir:              "data/audio",
		ExportDir:             "data/experiments",
		Language:              "en",
		TranscriptionProvider: ProviderOpenAI,
		TranscriptionModel:    "gpt-4o-transcribe",
		SampleRate:            24000,
		RewriteModel:          "gpt-4o",
		ResponseMode:          ModeLineCommands,
		SummaryModel:          "openai/gpt-4o-mini",
		GoogleCredentialsFile: "./service-account.json",
		BackupInterval:        "1h",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedBackupInterval returns BackupInterval as a time.Duration, falling
// back to 1h if the value is invalid.
func (c *Config) ParsedBackupInterval() time.Duration {
	d, err := time.ParseDuration(c.BackupInterval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "AUDIO_DIR"); v != "" {
		cfg.AudioDir = v
	}
	if v := os.Getenv(EnvPrefix + "EXPORT_DIR"); v != "" {
		cfg.ExportDir = v
	}
	if v := os.Getenv(EnvPrefix + "LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIPTION_PROVIDER"); v != "" {
		cfg.TranscriptionProvider = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIPTION_MODEL"); v != "" {
		cfg.TranscriptionModel = v
	}
	if v := os.Getenv(EnvPrefix + "SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.SampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "REWRITE_MODEL"); v != "" {
		cfg.RewriteModel = v
	}
	if v := os.Getenv(EnvPrefix + "RESPONSE_MODE"); v != "" {
		cfg.ResponseMode = v
	}
	if v := os.Getenv(EnvPrefix + "SUMMARY_MODEL"); v != "" {
		cfg.SummaryModel = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
	if v := os.Getenv(EnvPrefix + "BACKUP_INTERVAL"); v != "" {
		cfg.BackupInterval = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.OpenAIAPIKey == "" {
		warnings = append(warnings, "OpenAI API key not configured — rewrites and voice transcription are disabled. Set "+EnvPrefix+"OPENAI_API_KEY.")
	}
	if cfg.TranscriptionProvider != ProviderOpenAI && cfg.TranscriptionProvider != ProviderDeepgram {
		warnings = append(warnings, fmt.Sprintf("Unknown transcription_provider %q — using %q.", cfg.TranscriptionProvider, ProviderOpenAI))
		cfg.TranscriptionProvider = ProviderOpenAI
	}
	if cfg.TranscriptionProvider == ProviderDeepgram && cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram selected but API key not configured — live transcription is disabled. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}
	if cfg.ResponseMode != ModeLineCommands && cfg.ResponseMode != ModeWholeText {
		warnings = append(warnings, fmt.Sprintf("Unknown response_mode %q — using %q.", cfg.ResponseMode, ModeLineCommands))
		cfg.ResponseMode = ModeLineCommands
	}
	if cfg.SampleRate <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid sample_rate %d — using 24000.", cfg.SampleRate))
		cfg.SampleRate = 24000
	}
	if _, err := time.ParseDuration(cfg.BackupInterval); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid backup_interval %q — using default 1h.", cfg.BackupInterval))
	}

	return warnings
}
