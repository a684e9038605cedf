// Package outline loads chapter lists from documents. HTML headings, PDF
// bookmarks and YAML/JSON outline files are supported.
package outline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackzampolin/outline/internal/types"
)

// ErrUnsupportedFormat is returned for files whose format is not recognized.
var ErrUnsupportedFormat = errors.New("unsupported outline format")

// Format identifies an input document type.
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		return FormatHTML, nil
	case ".pdf":
		return FormatPDF, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Load reads the chapter list of the document at path.
func Load(path string) ([]types.Chapter, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	chapters, err := Parse(f, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return chapters, nil
}

// Parse reads a chapter list in the given format. Positions are assigned in
// source order and parent paths are rebuilt from the heading levels.
func Parse(r io.ReadSeeker, format Format) ([]types.Chapter, error) {
	var (
		chapters []types.Chapter
		err      error
	)
	switch format {
	case FormatHTML:
		chapters, err = ParseHTML(r)
	case FormatPDF:
		chapters, err = ParsePDF(r)
	case FormatYAML:
		chapters, err = ParseYAML(r)
	case FormatJSON:
		chapters, err = ParseJSON(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	return types.Normalize(dropUntitled(chapters)), nil
}

func dropUntitled(chapters []types.Chapter) []types.Chapter {
	out := chapters[:0]
	for _, ch := range chapters {
		ch.Title = cleanText(ch.Title)
		if ch.Title != "" {
			out = append(out, ch)
		}
	}
	return out
}

// cleanText collapses runs of whitespace into single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
