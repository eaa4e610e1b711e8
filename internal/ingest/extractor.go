package ingest

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Supported material payload kinds.
const (
	KindText = "text"
	KindPDF  = "pdf"
)

// ExtractText turns an uploaded material payload into plain text. PDF
// payloads are parsed page by page; text payloads pass through after
// whitespace normalization. An empty extraction result is an error: a
// material with no text can never match a query.
func ExtractText(kind string, data []byte) (string, error) {
	var text string
	switch kind {
	case KindText:
		text = string(data)
	case KindPDF:
		extracted, err := extractPDF(data)
		if err != nil {
			return "", fmt.Errorf("extracting pdf text: %w", err)
		}
		text = extracted
	default:
		return "", fmt.Errorf("unsupported material kind %q", kind)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("no text content in %s payload", kind)
	}
	return text, nil
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", fmt.Errorf("copying pdf text: %w", err)
	}
	return sb.String(), nil
}
