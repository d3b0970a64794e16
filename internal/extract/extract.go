// Package extract turns document files into plain text so they can be
// imported as records.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// Func extracts the text of a document held in content.
type Func func(content []byte) (string, error)

var formats = map[string]Func{
	".txt":  plainText,
	".md":   plainText,
	".rst":  plainText,
	".pdf":  pdfText,
	".docx": docxText,
	".pptx": pptxText,
	".xlsx": sheetText,
	".odt":  odfText,
	".odp":  odfText,
	".ods":  odfText,
}

// Supported reports whether documents with extension ext (with the leading
// dot, any case) can be extracted.
func Supported(ext string) bool {
	_, ok := formats[strings.ToLower(ext)]
	return ok
}

// Extensions returns the supported extensions, sorted.
func Extensions() []string {
	out := make([]string, 0, len(formats))
	for ext := range formats {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Bytes extracts the text of content, whose format is given by ext.
func Bytes(content []byte, ext string) (string, error) {
	fn, ok := formats[strings.ToLower(ext)]
	if !ok {
		return "", fmt.Errorf("unsupported document format %q", ext)
	}
	text, err := fn(content)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// File reads the document at path and extracts its text.
func File(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return Bytes(content, filepath.Ext(path))
}

// plainText returns content with invalid UTF-8 replaced.
func plainText(content []byte) (string, error) {
	if utf8.Valid(content) {
		return string(content), nil
	}
	return strings.ToValidUTF8(string(content), "\ufffd"), nil
}
