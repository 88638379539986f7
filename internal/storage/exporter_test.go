package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestExporterAppendsToDateFile(t *testing.T) {
	dir := t.TempDir()
	exporter := NewExporter(dir)

	result := sampleResult(3, "product-9")
	result.ID = 42

	if err := exporter.Append(result); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := exporter.Append(result); err != nil {
		t.Fatalf("second Append failed: %v", err)
	}

	path := filepath.Join(dir, result.StartedAt.Format("2006-01-02")+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log failed: %v", err)
	}

	content := string(data)
	if strings.Count(content, "## Experiment 42") != 2 {
		t.Fatalf("expected two appended records, got:\n%s", content)
	}
	if !strings.Contains(content, "participant 3, task product-9") {
		t.Fatalf("missing header details:\n%s", content)
	}
	if !strings.Contains(content, `"improve line two"`) {
		t.Fatalf("missing step line:\n%s", content)
	}
	if !strings.Contains(content, "first\nimproved") {
		t.Fatalf("missing final text:\n%s", content)
	}
}

func TestExporterCurrentPath(t *testing.T) {
	exporter := NewExporter("logs")
	want := filepath.Join("logs", time.Now().Format("2006-01-02")+".md")
	if got := exporter.CurrentPath(); got != want {
		t.Fatalf("CurrentPath = %q, want %q", got, want)
	}
}
