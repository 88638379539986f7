package patch

import "testing"

func TestApply_EmptyCommandList(t *testing.T) {
	original := "a\nb\nc"
	if got := Apply(original, nil); got != original {
		t.Fatalf("expected input unchanged, got %q", got)
	}
}

func TestApply_SingleCommands(t *testing.T) {
	cases := []struct {
		name     string
		original string
		commands []Command
		want     string
	}{
		{
			name:     "delete middle line",
			original: "a\nb\nc",
			commands: []Command{{Line: 2, Op: OpDelete}},
			want:     "a\nc",
		},
		{
			name:     "add after first line",
			original: "a\nb",
			commands: []Command{{Line: 1, Op: OpAdd, Text: "x"}},
			want:     "a\nx\nb",
		},
		{
			name:     "add at end",
			original: "a\nb",
			commands: []Command{{Line: 2, Op: OpAdd, Text: "x"}},
			want:     "a\nb\nx",
		},
		{
			name:     "modify line",
			original: "a\nb\nc",
			commands: []Command{{Line: 3, Op: OpModify, Text: "z"}},
			want:     "a\nb\nz",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Apply(tc.original, tc.commands); got != tc.want {
				t.Errorf("Apply() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestApply_OutOfRangeIsNoOp(t *testing.T) {
	original := "a\nb"
	cases := []struct {
		name     string
		commands []Command
		want     string
	}{
		{"modify past end", []Command{{Line: 5, Op: OpModify, Text: "x"}}, original},
		{"delete past end", []Command{{Line: 3, Op: OpDelete}}, original},
		{"add past append point", []Command{{Line: 4, Op: OpAdd, Text: "x"}}, original},
		{"zero line", []Command{{Line: 0, Op: OpModify, Text: "x"}}, original},
		{"negative line", []Command{{Line: -1, Op: OpDelete}}, original},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Apply(original, tc.commands); got != tc.want {
				t.Errorf("Apply() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestApply_DescendingOrderKeepsTargetsStable(t *testing.T) {
	// Deleting line 2 and inserting after line 1 must not interfere even
	// though the commands arrive in ascending order.
	original := "L1\nL2\nL3"
	commands := []Command{
		{Line: 2, Op: OpDelete},
		{Line: 1, Op: OpAdd, Text: "L1.5"},
	}
	if got := Apply(original, commands); got != "L1\nL1.5\nL3" {
		t.Fatalf("Apply() = %q, want %q", got, "L1\nL1.5\nL3")
	}
}

func TestApply_SameLineCommandsKeepListOrder(t *testing.T) {
	original := "a\nb"
	commands := []Command{
		{Line: 1, Op: OpAdd, Text: "first"},
		{Line: 1, Op: OpAdd, Text: "second"},
	}
	// Both insert after original line 1; the first command runs first, the
	// second inserts directly after line 1 again, landing above "first".
	if got := Apply(original, commands); got != "a\nsecond\nfirst\nb" {
		t.Fatalf("Apply() = %q, want %q", got, "a\nsecond\nfirst\nb")
	}
}

func TestApply_DeterministicAcrossRuns(t *testing.T) {
	original := "1\n2\n3\n4"
	commands := []Command{
		{Line: 4, Op: OpModify, Text: "four"},
		{Line: 2, Op: OpDelete},
		{Line: 1, Op: OpAdd, Text: "1.5"},
	}
	first := Apply(original, commands)
	for range 10 {
		if got := Apply(original, commands); got != first {
			t.Fatalf("non-deterministic result: %q vs %q", got, first)
		}
	}
	if first != "1\n1.5\n3\nfour" {
		t.Fatalf("Apply() = %q, want %q", first, "1\n1.5\n3\nfour")
	}
}
