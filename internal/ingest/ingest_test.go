package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSortPartsByNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "already sorted",
			input:    []string{"act-1.pdf", "act-2.pdf", "act-3.pdf"},
			expected: []string{"act-1.pdf", "act-2.pdf", "act-3.pdf"},
		},
		{
			name:     "mixed with double digits",
			input:    []string{"act-10.txt", "act-2.txt", "act-1.txt"},
			expected: []string{"act-1.txt", "act-2.txt", "act-10.txt"},
		},
		{
			name:     "numbered and unnumbered",
			input:    []string{"act-2.pdf", "act.pdf", "act-1.pdf"},
			expected: []string{"act.pdf", "act-1.pdf", "act-2.pdf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sortPartsByNumber(tt.input)
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("index %d: got %q, want %q", i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/scripts/night-shift.fountain", "night-shift"},
		{"/scripts/night-shift-2.pdf", "night-shift"},
		{"draft.txt", "draft"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := deriveTitle(tt.input); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFromText(t *testing.T) {
	doc := FromText("pilot.fountain", "INT. ROOM - DAY\r\n\r\nALICE\r\nHello.")
	if strings.Contains(doc.Text, "\r") {
		t.Error("expected CRLF to be normalized")
	}
	if doc.ID.ContentHash != HashText("INT. ROOM - DAY\n\nALICE\nHello.") {
		t.Error("hash should cover the normalized text")
	}
	if doc.Format != FormatFountain || doc.Title != "pilot" || doc.PageCount != 1 {
		t.Errorf("doc = %+v", doc)
	}

	long := strings.Repeat("line\n", 110)
	if got := FromText("x.txt", long).PageCount; got != 3 {
		t.Errorf("PageCount = %d, want 3", got)
	}
}

func TestLoadParts(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	p2 := write("script-2.txt", "ACT TWO")
	p1 := write("script-1.txt", "\xef\xbb\xbfACT ONE")

	doc, err := LoadParts(context.Background(), []string{p2, p1}, nil)
	if err != nil {
		t.Fatalf("LoadParts() error = %v", err)
	}
	if doc.Text != "ACT ONE\n\nACT TWO" {
		t.Errorf("Text = %q", doc.Text)
	}
	if doc.ID.FileName != "script-1.txt" || doc.Title != "script" {
		t.Errorf("ID = %+v, Title = %q", doc.ID, doc.Title)
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(context.Background(), filepath.Join(dir, "nope.txt"), nil); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("empty file", func(t *testing.T) {
		if _, err := Load(context.Background(), write("blank.txt", " \n\n"), nil); err == nil {
			t.Error("expected error for blank document")
		}
	})

	t.Run("binary file", func(t *testing.T) {
		if _, err := Load(context.Background(), write("bin.txt", "\xff\xfe\x00"), nil); err == nil {
			t.Error("expected error for invalid UTF-8")
		}
	})
}
