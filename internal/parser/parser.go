package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"document-qa/internal/models"
)

// Extractor turns a document file into ordered page texts
type Extractor interface {
	Extract(filePath string) ([]models.PageExtract, error)
}

type extractFunc func(filePath string) ([]string, error)

// FileExtractor dispatches on the file extension
type FileExtractor struct {
	byExt map[string]extractFunc
}

// NewFileExtractor returns an extractor for every supported document type
func NewFileExtractor() *FileExtractor {
	return &FileExtractor{
		byExt: map[string]extractFunc{
			".pdf":  parsePDF,
			".docx": parseDOCX,
			".pptx": parsePPTX,
			".xlsx": parseXLSX,
			".xlsm": parseExcelize,
			".xltx": parseExcelize,
			".txt":  parseText,
			".md":   parseMarkdown,
		},
	}
}

// SupportedExtensions lists the extensions the extractor can read
func (e *FileExtractor) SupportedExtensions() []string {
	exts := make([]string, 0, len(e.byExt))
	for ext := range e.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract returns the pages of the file numbered from 1. Any failure,
// including a panic inside a decoder, is reported as ErrExtraction.
func (e *FileExtractor) Extract(filePath string) (pages []models.PageExtract, err error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	fn, ok := e.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file format: %s", models.ErrExtraction, ext)
	}

	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %s: decoder panic: %v", models.ErrExtraction, filePath, r)
		}
	}()

	texts, err := fn(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrExtraction, filePath, err)
	}

	filename := filepath.Base(filePath)
	pages = make([]models.PageExtract, 0, len(texts))
	for i, t := range texts {
		pages = append(pages, models.PageExtract{
			Text:           t,
			SourceFilename: filename,
			PageNumber:     i + 1,
		})
	}
	log.Debug().Str("file", filename).Int("pages", len(pages)).Msg("Extracted pages")
	return pages, nil
}

func parsePDF(filePath string) ([]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, pageText)
	}
	return pages, nil
}

var (
	wordTextRe      = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	wordParagraphRe = regexp.MustCompile(`</w:p>`)
	xmlTagRe        = regexp.MustCompile(`<[^>]+>`)
)

// DOCX has no stable page numbers, the whole document is one page
func parseDOCX(filePath string) ([]string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	return []string{wordXMLToText(content)}, nil
}

func wordXMLToText(content string) string {
	paragraphs := wordParagraphRe.Split(content, -1)
	var lines []string
	for _, p := range paragraphs {
		var line strings.Builder
		for _, m := range wordTextRe.FindAllStringSubmatch(p, -1) {
			line.WriteString(unescapeXML(m[1]))
		}
		if line.Len() > 0 {
			lines = append(lines, line.String())
		}
	}
	return strings.Join(lines, "\n")
}

// one page per slide, ordered by slide number
func parsePPTX(filePath string) ([]string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type slide struct {
		num  int
		text string
	}
	var slides []slide
	for _, file := range f.File {
		if !strings.HasPrefix(file.Name, "ppt/slides/slide") || !strings.HasSuffix(file.Name, ".xml") {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(file.Name, "ppt/slides/slide"), ".xml"))
		if err != nil {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		slides = append(slides, slide{num: num, text: extractTextFromXML(string(data))})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	pages := make([]string, len(slides))
	for i, s := range slides {
		pages[i] = s.text
	}
	return pages, nil
}

func extractTextFromXML(xmlContent string) string {
	var parts []string
	for _, chunk := range strings.Split(xmlContent, "<a:t>")[1:] {
		endIdx := strings.Index(chunk, "</a:t>")
		if endIdx >= 0 {
			parts = append(parts, unescapeXML(chunk[:endIdx]))
		}
	}
	return strings.Join(parts, "\n")
}

func unescapeXML(s string) string {
	s = xmlTagRe.ReplaceAllString(s, "")
	return strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'").Replace(s)
}

// one page per sheet
func parseXLSX(filePath string) ([]string, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	pages := make([]string, 0, len(f.Sheets))
	for _, sheet := range f.Sheets {
		var rows [][]string
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		pages = append(pages, sheetText(sheet.Name, rows))
	}
	return pages, nil
}

func parseExcelize(filePath string) ([]string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	pages := make([]string, 0, len(sheets))
	for _, sheetName := range sheets {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		pages = append(pages, sheetText(sheetName, rows))
	}
	return pages, nil
}

func sheetText(name string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("Sheet: " + name + "\n")
	for _, row := range rows {
		b.WriteString(strings.TrimRight(strings.Join(row, "\t"), "\t"))
		b.WriteString("\n")
	}
	return b.String()
}

func parseText(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []string{string(data)}, nil
}

func parseMarkdown(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []string{markdownToText(data)}, nil
}

// markdownToText walks the goldmark AST and keeps only the readable text,
// one line per block
func markdownToText(source []byte) string {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
				buf.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					buf.Write(t.Segment.Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}
