// Package script extracts and cleans reference scripts uploaded alongside a
// recording.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/speechscore/internal/apperr"
)

// ErrUnsupportedDocument is returned for script files other than plain text.
var ErrUnsupportedDocument = errors.New("script: unsupported document format")

// ErrInvalidEncoding is returned for text that is not valid UTF-8.
var ErrInvalidEncoding = errors.New("script: text is not valid UTF-8")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Extract reads a script file named name. Only .txt is supported; DOCX, PDF,
// HWP and RTF are rejected with a document-processing error.
func Extract(name string, r io.Reader) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext != "txt" {
		return "", apperr.DocumentProcessing("extract", fmt.Errorf("%w: %q", ErrUnsupportedDocument, ext))
	}
	return ExtractTXT(r)
}

// ExtractTXT reads UTF-8 text, dropping a leading byte order mark.
func ExtractTXT(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", apperr.DocumentProcessing("extract_txt", fmt.Errorf("script: read: %w", err))
	}
	b = bytes.TrimPrefix(b, utf8BOM)
	if !utf8.Valid(b) {
		return "", apperr.DocumentProcessing("extract_txt", ErrInvalidEncoding)
	}
	return string(b), nil
}

var (
	footnoteLine = regexp.MustCompile(`(?m)^\^\(?\d+[.)]*\n?`)
	pageNumbers  = regexp.MustCompile(`\b7\s*8\b\s*`)
	iaaMarker    = regexp.MustCompile(`(?i)\bIAA\b`)
	encodedToken = regexp.MustCompile(`\b[A-Za-z0-9+/=]{10,}\b`)
	hasLetter    = regexp.MustCompile(`[A-Za-z]`)
	footnoteRef  = regexp.MustCompile(`\^\d+[.)]`)
	footnoteParn = regexp.MustCompile(`\(\^\d+\)`)
	disallowed   = regexp.MustCompile(`[^\x{AC00}-\x{D7A3}a-zA-Z0-9\s.,!?-]`)
	spaces       = regexp.MustCompile(`\s+`)
	punctSpacing = regexp.MustCompile(`\s*([.,!?])\s*`)
	punct        = regexp.MustCompile(`([.,!?])`)
)

// Clean strips extraction debris from raw document text: footnote markers,
// page-number residue, encoded blobs and symbols outside Hangul, Latin,
// digits and basic punctuation. Whitespace is collapsed and punctuation is
// followed by exactly one space.
func Clean(raw string) string {
	text := footnoteLine.ReplaceAllString(raw, "")
	text = pageNumbers.ReplaceAllString(text, "")
	text = iaaMarker.ReplaceAllString(text, "")
	text = encodedToken.ReplaceAllStringFunc(text, func(tok string) string {
		if hasLetter.MatchString(tok) {
			return ""
		}
		return tok
	})
	text = footnoteRef.ReplaceAllString(text, "")
	text = footnoteParn.ReplaceAllString(text, "")
	text = disallowed.ReplaceAllString(text, " ")
	text = spaces.ReplaceAllString(text, " ")
	text = punctSpacing.ReplaceAllString(text, "$1")
	text = punct.ReplaceAllString(text, "$1 ")
	return strings.TrimSpace(text)
}
