package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tacchanmaru/talkedit/internal/audio"
	"github.com/tacchanmaru/talkedit/internal/config"
	"github.com/tacchanmaru/talkedit/internal/gdrive"
	"github.com/tacchanmaru/talkedit/internal/llm"
	"github.com/tacchanmaru/talkedit/internal/rewrite"
	"github.com/tacchanmaru/talkedit/internal/server"
	"github.com/tacchanmaru/talkedit/internal/session"
	"github.com/tacchanmaru/talkedit/internal/storage"
	"github.com/tacchanmaru/talkedit/internal/summary"
	"github.com/tacchanmaru/talkedit/internal/transcribe"
)

func main() {
	log.Println("talkedit: starting")

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	hub := server.NewHub()
	recorder := audio.NewRecorder(cfg.AudioDir)
	recorder.SetSampleRate(cfg.SampleRate)
	exporter := storage.NewExporter(cfg.ExportDir)

	mode := rewrite.ModeLineCommands
	if cfg.ResponseMode == config.ModeWholeText {
		mode = rewrite.ModeWholeText
	}
	rewriter := rewrite.NewClient(cfg.OpenAIAPIKey, cfg.RewriteModel, mode)

	summarizer := buildSummarizer(cfg)

	micReady := false
	if err := audio.Initialize(); err != nil {
		log.Printf("warning: audio unavailable, voice sessions disabled: %v", err)
	} else {
		micReady = true
		defer func() { _ = audio.Terminate() }()
	}

	manager := session.NewManager(
		store, hub, recorder, rewriter, summarizer, mode,
		newTranscriberFactory(cfg),
		func(onFrame func([]float32)) (session.Mic, error) {
			if !micReady {
				return nil, os.ErrInvalid
			}
			return audio.NewMic(cfg.SampleRate, onFrame)
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.GDriveFolderID != "" {
		startBackup(ctx, cfg, store.Path())
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(nil, hub, manager, store, exporter),
	}
	go func() {
		log.Printf("talkedit: API on http://%s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("talkedit: shutting down")
	cancel()
	manager.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}

func newTranscriberFactory(cfg config.Config) session.TranscriberFactory {
	return func() (transcribe.Transcriber, error) {
		if cfg.TranscriptionProvider == config.ProviderDeepgram {
			return transcribe.NewDeepgramClient(transcribe.DeepgramConfig{
				APIKey:     cfg.DeepgramAPIKey,
				Model:      cfg.TranscriptionModel,
				Language:   cfg.Language,
				SampleRate: cfg.SampleRate,
			}), nil
		}
		issuer := transcribe.NewOpenAITokenIssuer(cfg.OpenAIAPIKey)
		return transcribe.NewRealtimeClient(issuer, transcribe.RealtimeConfig{
			Model:    cfg.TranscriptionModel,
			Language: cfg.Language,
		}), nil
	}
}

func buildSummarizer(cfg config.Config) session.Summarizer {
	provider, modelName, err := llm.ParseModel(cfg.SummaryModel)
	if err != nil {
		log.Printf("warning: invalid summary_model, history summaries disabled: %v", err)
		return nil
	}

	var apiKey string
	switch provider {
	case "openai":
		apiKey = cfg.OpenAIAPIKey
	case "anthropic":
		apiKey = cfg.AnthropicAPIKey
	case "gemini":
		apiKey = cfg.GeminiAPIKey
	}
	if apiKey == "" {
		log.Printf("warning: no API key for summary provider %q, history summaries disabled", provider)
		return nil
	}

	client, err := llm.NewClient(provider, apiKey, modelName)
	if err != nil {
		log.Printf("warning: summary client init failed, history summaries disabled: %v", err)
		return nil
	}
	return summary.New(client)
}

func startBackup(ctx context.Context, cfg config.Config, dbPath string) {
	syncer, err := gdrive.NewSyncer(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
	if err != nil {
		log.Printf("warning: gdrive backup disabled: %v", err)
		return
	}

	interval := cfg.ParsedBackupInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				date := time.Now().UTC().Format("2006-01-02")
				if err := syncer.Sync(dbPath, date); err != nil {
					log.Printf("gdrive backup error: %v", err)
				}
			}
		}
	}()
}
