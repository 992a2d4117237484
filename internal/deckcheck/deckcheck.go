// Package deckcheck performs a local sanity check on an uploaded pitch deck
// before any network call: size, type, and that the PDF actually parses
// into at least one page for the extraction pipeline to work with.
package deckcheck

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MaxUploadBytes bounds accepted uploads.
const MaxUploadBytes = 5 << 20

const mimePDF = "application/pdf"

var (
	ErrEmpty           = errors.New("empty document")
	ErrTooLarge        = errors.New("document exceeds the size limit")
	ErrUnsupportedType = errors.New("unsupported document type")
	ErrUnreadable      = errors.New("document could not be read")
	ErrNoPages         = errors.New("document contains no pages")
)

// Verify checks an in-memory pitch deck payload. A nil error means the deck
// is safe to stage and hand to the extraction pipeline.
func Verify(data []byte, mimeType, fileName string) error {
	if len(data) == 0 {
		return ErrEmpty
	}
	if len(data) > MaxUploadBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	if !isPDF(mimeType, fileName, data) {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if reader.NumPage() == 0 {
		return ErrNoPages
	}

	// Scanned decks have no text layer; the OCR stage handles those, so
	// page structure is all that gets checked here.
	return nil
}

func isPDF(mimeType, fileName string, data []byte) bool {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if clean == mimePDF {
		return true
	}
	if strings.ToLower(filepath.Ext(fileName)) == ".pdf" {
		return true
	}
	return bytes.HasPrefix(data, []byte("%PDF-"))
}
