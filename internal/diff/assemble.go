package diff

import (
	"fmt"
	"strings"
)

// Assemble concatenates patch documents in order, dropping empty ones.
// Documents carry their own trailing newlines; nothing is added between
// them.
func Assemble(docs ...string) string {
	var b strings.Builder
	for _, d := range docs {
		if d == "" {
			continue
		}
		b.WriteString(d)
	}
	return b.String()
}

// Split cuts an assembled text back into documents of the given byte sizes.
func Split(text string, sizes []int) ([]string, error) {
	docs := make([]string, 0, len(sizes))
	off := 0
	for _, n := range sizes {
		if n < 0 || off+n > len(text) {
			return nil, fmt.Errorf("document boundary %d out of range for %d bytes", off+n, len(text))
		}
		docs = append(docs, text[off:off+n])
		off += n
	}
	if off != len(text) {
		return nil, fmt.Errorf("%d trailing bytes after last document", len(text)-off)
	}
	return docs, nil
}
