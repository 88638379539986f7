// Package patch applies line-addressed edit commands from the rewrite
// service to a text buffer.
package patch

import (
	"sort"
	"strings"
)

// Op is the kind of edit a single command performs.
type Op string

const (
	OpAdd    Op = "add"
	OpDelete Op = "delete"
	OpModify Op = "modify"
)

// Command is one line-addressed edit. Line is 1-indexed into the original
// text. Text is empty for deletes. The JSON shape matches the rewrite
// service contract.
type Command struct {
	Line int    `json:"line"`
	Op   Op     `json:"command"`
	Text string `json:"text"`
}

// Apply runs commands against original and returns the edited text.
//
// Commands are applied in descending line order so edits at lower line
// numbers cannot shift the targets of commands that have not run yet.
// Commands sharing a line number keep their list order (stable sort).
// Out-of-range line numbers are silent no-ops; Apply never fails.
func Apply(original string, commands []Command) string {
	if len(commands) == 0 {
		return original
	}

	lines := strings.Split(original, "\n")

	sorted := make([]Command, len(commands))
	copy(sorted, commands)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Line > sorted[j].Line
	})

	for _, cmd := range sorted {
		i := cmd.Line - 1
		switch cmd.Op {
		case OpModify:
			if i >= 0 && i < len(lines) {
				lines[i] = cmd.Text
			}
		case OpAdd:
			// Insert after line i; line == len(lines) appends at the end.
			if i >= 0 && i < len(lines) {
				lines = append(lines[:i+1], append([]string{cmd.Text}, lines[i+1:]...)...)
			} else if i == len(lines) {
				lines = append(lines, cmd.Text)
			}
		case OpDelete:
			if i >= 0 && i < len(lines) {
				lines = append(lines[:i], lines[i+1:]...)
			}
		}
	}

	return strings.Join(lines, "\n")
}
