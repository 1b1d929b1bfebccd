package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrEmptyDocument = errors.New("pdf document is empty")

// Extractor pulls plain text out of PDF uploads.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// ExtractPages returns the plain text of every page, in page order. Pages
// without a content stream yield an empty string.
func (e *Extractor) ExtractPages(r io.Reader) (pages []string, err error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf failed: %w", err)
	}
	if len(b) == 0 {
		return nil, ErrEmptyDocument
	}

	// The parser panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("parse pdf failed: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}

	total := reader.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		// nil lets the page resolve its own font encodings.
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d failed: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// ExtractText concatenates the non-empty page texts with no separator.
func (e *Extractor) ExtractText(r io.Reader) (string, error) {
	pages, err := e.ExtractPages(r)
	if err != nil {
		return "", err
	}
	return JoinPages(pages), nil
}

// JoinPages concatenates pages, skipping those with no text.
func JoinPages(pages []string) string {
	var sb strings.Builder
	for _, p := range pages {
		if p == "" {
			continue
		}
		sb.WriteString(p)
	}
	return sb.String()
}
