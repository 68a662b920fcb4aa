// Package parser extracts text from document files and splits it into
// chunks suitable for embedding.
//
// Parsing is deterministic: identical input bytes always produce identical
// text and identical chunk sequences, so content fingerprints are stable
// across re-ingestion.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Parsed is the text extraction result for one file.
type Parsed struct {
	// Text is the full extracted text, image markers stripped.
	Text string

	// Title is a best-effort title, usually the file name.
	Title string

	// Format is the detected input format ("pdf", "docx", ...).
	Format string

	// Pages is the page count for paginated formats, 0 otherwise.
	Pages int
}

var imageMarkerRe = regexp.MustCompile(`\[(?i:image)[^\]]*\]`)

// Parse extracts text from raw bytes using the filename extension as the
// format hint. Unknown extensions are treated as plain text.
func Parse(filename string, data []byte) (*Parsed, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	base := filepath.Base(filename)

	var parsed *Parsed
	var err error

	switch ext {
	case ".pdf":
		parsed, err = parsePDF(base, data)
	case ".docx":
		parsed, err = parseDocx(base, data)
	case ".xlsx":
		parsed, err = parseXlsx(base, data)
	case ".md", ".markdown":
		parsed, err = parseMarkdown(base, data)
	case ".json":
		parsed, err = parseJSON(base, data)
	case ".jsonl":
		parsed, err = parseJSONL(base, data)
	default:
		parsed = &Parsed{
			Text:   string(data),
			Title:  base,
			Format: "text",
		}
	}
	if err != nil {
		return nil, err
	}

	parsed.Text = cleanText(parsed.Text)
	return parsed, nil
}

// cleanText strips image markers and normalizes line endings.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = imageMarkerRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// parseJSON flattens a JSON document into "path: value" lines with sorted
// keys so output is stable regardless of map iteration order.
func parseJSON(title string, data []byte) (*Parsed, error) {
	v, err := decodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	var b strings.Builder
	flattenJSON(&b, "", v)
	return &Parsed{
		Text:   b.String(),
		Title:  title,
		Format: "json",
	}, nil
}

// parseJSONL flattens one JSON document per line, skipping blank lines.
func parseJSONL(title string, data []byte) (*Parsed, error) {
	var b strings.Builder
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		v, err := decodeJSON(line)
		if err != nil {
			return nil, fmt.Errorf("failed to parse JSONL line: %w", err)
		}
		flattenJSON(&b, "", v)
		b.WriteString("\n")
	}
	return &Parsed{
		Text:   b.String(),
		Title:  title,
		Format: "jsonl",
	}, nil
}

// decodeJSON decodes with json.Number so numeric values keep their source
// representation in the flattened text.
func decodeJSON(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func flattenJSON(b *strings.Builder, path string, v interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := k
			if path != "" {
				child = path + "." + k
			}
			flattenJSON(b, child, val[k])
		}
	case []interface{}:
		for i, item := range val {
			flattenJSON(b, fmt.Sprintf("%s[%d]", path, i), item)
		}
	case nil:
		// skip nulls
	default:
		if path == "" {
			fmt.Fprintf(b, "%v\n", val)
		} else {
			fmt.Fprintf(b, "%s: %v\n", path, val)
		}
	}
}
