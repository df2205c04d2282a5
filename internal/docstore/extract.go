package docstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractText converts fetched document bytes into plain UTF-8 text.
// Pure: no network, no state. An empty extraction result is an error so the
// cache never memoizes an empty record.
func ExtractText(data []byte, mimeType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "application/pdf":
		return extractPDF(data)
	default:
		// Plain text, markdown, JSON exports and unknown types all go
		// through UTF-8 sanitization.
		return sanitizeText(data)
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.New("pdf contains no extractable text")
	}
	return text, nil
}

func sanitizeText(data []byte) (string, error) {
	s := strings.ToValidUTF8(string(data), "�")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("document contains no text")
	}
	return s, nil
}
