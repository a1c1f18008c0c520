// Package ingest loads screenplay documents from disk.
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// LinesPerPage approximates a formatted screenplay page.
const LinesPerPage = 55

// Format is the source format of a document.
type Format string

const (
	FormatText     Format = "text"
	FormatFountain Format = "fountain"
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
)

// DocumentID identifies a document for caching and checkpoints.
type DocumentID struct {
	ContentHash string `json:"content_hash"`
	FileName    string `json:"file_name"`
}

// Document is an immutable loaded document.
type Document struct {
	ID        DocumentID `json:"id"`
	Title     string     `json:"title"`
	Text      string     `json:"-"`
	PageCount int        `json:"page_count"`
	Path      string     `json:"path,omitempty"`
	Format    Format     `json:"format"`
}

// HashText returns the hex SHA-256 of text.
func HashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// FromText builds a document from text already in memory.
func FromText(fileName, text string) *Document {
	text = normalizeNewlines(text)
	return &Document{
		ID:        DocumentID{ContentHash: HashText(text), FileName: fileName},
		Title:     deriveTitle(fileName),
		Text:      text,
		PageCount: estimatePages(text),
		Format:    formatFor(fileName),
	}
}

// Load reads a single document.
func Load(ctx context.Context, path string, logger *slog.Logger) (*Document, error) {
	return LoadParts(ctx, []string{path}, logger)
}

// LoadParts reads a document split over several files (script-1.pdf,
// script-2.pdf, ...) and joins them in numeric suffix order.
func LoadParts(ctx context.Context, paths []string, logger *slog.Logger) (*Document, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no document paths provided")
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("document not found: %s", p)
		}
	}

	sorted := sortPartsByNumber(paths)
	logger.Debug("loading document", "parts", len(sorted), "first", filepath.Base(sorted[0]))

	var texts []string
	pdfPages := 0
	for _, p := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, pages, err := readPart(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		texts = append(texts, text)
		pdfPages += pages
	}

	doc := FromText(filepath.Base(sorted[0]), strings.Join(texts, "\n\n"))
	doc.Path = sorted[0]
	if pdfPages > 0 {
		doc.PageCount = pdfPages
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("document %s contains no text", doc.ID.FileName)
	}

	logger.Info("loaded document",
		"file", doc.ID.FileName,
		"format", doc.Format,
		"pages", doc.PageCount,
		"hash", doc.ID.ContentHash[:12])
	return doc, nil
}

func readPart(path string) (text string, pages int, err error) {
	if formatFor(path) == FormatPDF {
		return readPDF(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", 0, fmt.Errorf("file is not valid UTF-8 text")
	}
	return string(data), 0, nil
}

// readPDF extracts the text layer of a PDF. Scanned screenplays without a
// text layer are rejected rather than analyzed as empty.
func readPDF(path string) (string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	pageCount, err := api.PageCount(f, nil)
	f.Close()
	if err != nil {
		return "", 0, fmt.Errorf("failed to get page count: %w", err)
	}

	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to parse PDF: %w", err)
	}
	defer file.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", 0, fmt.Errorf("failed to extract PDF text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", 0, fmt.Errorf("failed to read PDF text: %w", err)
	}
	if strings.TrimSpace(buf.String()) == "" {
		return "", 0, fmt.Errorf("PDF has no text layer (%d pages)", pageCount)
	}
	return buf.String(), pageCount, nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func estimatePages(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	lines := strings.Count(text, "\n") + 1
	return (lines + LinesPerPage - 1) / LinesPerPage
}

func formatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FormatPDF
	case ".fountain", ".spmd":
		return FormatFountain
	case ".md", ".markdown":
		return FormatMarkdown
	default:
		return FormatText
	}
}

var partSuffix = regexp.MustCompile(`-(\d+)\.[A-Za-z]+$`)

// sortPartsByNumber sorts paths by their numeric suffix.
// e.g., ["act-2.pdf", "act-1.pdf", "act-10.pdf"] -> ["act-1.pdf", "act-2.pdf", "act-10.pdf"]
func sortPartsByNumber(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	sort.SliceStable(sorted, func(i, j int) bool {
		mi := partSuffix.FindStringSubmatch(sorted[i])
		mj := partSuffix.FindStringSubmatch(sorted[j])

		if len(mi) > 1 && len(mj) > 1 {
			ni, _ := strconv.Atoi(mi[1])
			nj, _ := strconv.Atoi(mj[1])
			return ni < nj
		}

		// Files without numbers come first
		if len(mi) > 1 {
			return false
		}
		if len(mj) > 1 {
			return true
		}
		return sorted[i] < sorted[j]
	})

	return sorted
}

var trailingPart = regexp.MustCompile(`-\d+$`)

// deriveTitle extracts a title from a filename.
// e.g., "night-shift.fountain" -> "night-shift"
// e.g., "night-shift-1.pdf" -> "night-shift"
func deriveTitle(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return trailingPart.ReplaceAllString(name, "")
}
