package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/fumiama/go-docx"
)

// extractDOCX returns the text of each body paragraph and table, one per line.
func extractDOCX(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read docx: %v", r)
		}
	}()

	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read docx: %w", err)
	}

	var lines []string
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			lines = append(lines, it.String())
		case *docx.Table:
			lines = append(lines, it.String())
		}
	}
	if len(lines) == 0 {
		return "", errors.New("read docx: document has no body content")
	}
	return strings.Join(lines, "\n"), nil
}
