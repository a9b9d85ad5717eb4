// Package pdftext extracts plain text from PDF documents.
//
// Extraction never fails the caller: corrupt, encrypted or image-only
// documents yield an empty string and a logged warning.
package pdftext

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extractor turns PDF bytes into text using a scratch directory for the
// duration of each parse.
type Extractor struct {
	tempDir string
	logger  *slog.Logger
}

// New creates an Extractor writing scratch files under tempDir
// (os.TempDir() when empty).
func New(tempDir string, logger *slog.Logger) *Extractor {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{tempDir: tempDir, logger: logger}
}

// Extract writes data to a uniquely named temp file derived from name,
// extracts its text and removes the file on every path.
func (e *Extractor) Extract(name string, data []byte) string {
	path, err := e.writeTemp(name, data)
	if err != nil {
		e.logger.Warn("could not stage pdf for extraction", "name", name, "error", err)
		return ""
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("could not remove temp pdf", "path", path, "error", err)
		}
	}()
	return e.ExtractFile(path)
}

func (e *Extractor) writeTemp(name string, data []byte) (string, error) {
	if err := os.MkdirAll(e.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	f, err := os.CreateTemp(e.tempDir, SafeName(name)+"-*.pdf")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return f.Name(), nil
}

// ExtractFile returns the trimmed plain text of the PDF at path, or "" when
// the document cannot be parsed or has no text layer.
func (e *Extractor) ExtractFile(path string) string {
	text, err := readPlainText(path)
	if err != nil {
		e.logger.Warn("pdf text extraction failed", "path", path, "error", err)
		return ""
	}
	if text == "" {
		e.logger.Warn("no text extracted (likely scanned image)", "path", path)
		return ""
	}
	e.logger.Debug("pdf text extracted", "path", path, "chars", len(text))
	return text
}

func readPlainText(path string) (text string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parser panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	rd, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading text: %w", err)
	}
	b, err := io.ReadAll(rd)
	if err != nil {
		return "", fmt.Errorf("reading text: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SafeName turns a PDF filename or decision number into a filesystem-safe
// stem: the .pdf extension is dropped and other characters become '_'.
func SafeName(name string) string {
	stem := name
	if strings.HasSuffix(strings.ToLower(stem), ".pdf") {
		stem = stem[:len(stem)-len(".pdf")]
	}
	stem = unsafeChars.ReplaceAllString(stem, "_")
	if stem == "" {
		return "document"
	}
	return stem
}
