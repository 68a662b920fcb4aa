package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// parsePDF extracts text page by page.
func parsePDF(title string, data []byte) (*Parsed, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	var parts []string
	totalPages := reader.NumPage()
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Bad pages are skipped; quality scoring downstream catches
			// documents that lost too much.
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}

	return &Parsed{
		Text:   strings.Join(parts, "\n\n"),
		Title:  title,
		Format: "pdf",
		Pages:  totalPages,
	}, nil
}

// parseDocx extracts the document body text.
func parseDocx(title string, data []byte) (*Parsed, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse DOCX: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	content = stripDocxTags(content)

	return &Parsed{
		Text:   content,
		Title:  title,
		Format: "docx",
	}, nil
}

// stripDocxTags removes residual WordprocessingML markup from extracted
// content, keeping paragraph breaks.
func stripDocxTags(content string) string {
	content = strings.ReplaceAll(content, "</w:p>", "\n")
	var b strings.Builder
	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseXlsx renders each sheet as "header: cell" lines, row by row, which
// keeps tabular pricing data searchable as text.
func parseXlsx(title string, data []byte) (*Parsed, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XLSX: %w", err)
	}
	defer f.Close()

	var parts []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil || len(rows) == 0 {
			continue
		}

		var sheet strings.Builder
		sheet.WriteString("Sheet: " + sheetName + "\n")

		header := rows[0]
		for _, row := range rows[1:] {
			var fields []string
			for i, cell := range row {
				cell = strings.TrimSpace(cell)
				if cell == "" {
					continue
				}
				if i < len(header) && strings.TrimSpace(header[i]) != "" {
					fields = append(fields, strings.TrimSpace(header[i])+": "+cell)
				} else {
					fields = append(fields, cell)
				}
			}
			if len(fields) > 0 {
				sheet.WriteString(strings.Join(fields, " | ") + "\n")
			}
		}
		parts = append(parts, sheet.String())
	}

	return &Parsed{
		Text:   strings.Join(parts, "\n"),
		Title:  title,
		Format: "xlsx",
	}, nil
}

// parseMarkdown walks the goldmark AST and emits plain text with block
// boundaries preserved as newlines.
func parseMarkdown(title string, data []byte) (*Parsed, error) {
	md := goldmark.New()
	root := md.Parser().Parse(gmtext.NewReader(data))

	var b strings.Builder
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(data))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.Heading, *ast.Paragraph, *ast.ListItem, *ast.Blockquote:
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
		case *ast.FencedCodeBlock:
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(data))
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk markdown AST: %w", err)
	}

	return &Parsed{
		Text:   b.String(),
		Title:  title,
		Format: "markdown",
	}, nil
}
