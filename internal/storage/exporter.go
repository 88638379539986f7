package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tacchanmaru/talkedit/internal/session"
)

// Exporter appends completed experiments to per-date markdown logs so
// experimenters can skim a day's runs without querying the database.
type Exporter struct {
	dir string
	mu  sync.Mutex
}

func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir}
}

func (e *Exporter) Append(result session.ExperimentResult) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", e.dir, err)
	}

	date := result.StartedAt.Format("2006-01-02")
	path := filepath.Join(e.dir, date+".md")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(formatMarkdown(result)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}

func formatMarkdown(result session.ExperimentResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Experiment %d — participant %d, task %s (%s",
		result.ID, result.ParticipantID, result.TaskID, result.ExperimentType)
	if result.Practice {
		b.WriteString(", practice")
	}
	b.WriteString(")\n\n")
	fmt.Fprintf(&b, "- started: %s\n", result.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- duration: %.1fs\n", result.DurationSeconds)
	fmt.Fprintf(&b, "- edits: %d\n", len(result.Steps))
	if result.AudioPath != "" {
		fmt.Fprintf(&b, "- audio: %s\n", result.AudioPath)
	}
	b.WriteString("\n")

	for i, step := range result.Steps {
		fmt.Fprintf(&b, "%d. %q → %s\n", i+1, step.Utterance, step.Plan)
	}
	if len(result.Steps) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("### Final text\n\n```\n")
	b.WriteString(result.FinalText)
	b.WriteString("\n```\n\n")

	return b.String()
}

// CurrentPath returns today's log file location.
func (e *Exporter) CurrentPath() string {
	date := time.Now().Format("2006-01-02")
	return filepath.Join(e.dir, date+".md")
}
