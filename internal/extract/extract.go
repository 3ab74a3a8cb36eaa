package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	MimeCSV  = "text/csv"
	MimeXLS  = "application/vnd.ms-excel"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	previewChars = 500
	previewRows  = 5
)

var (
	// ErrUnsupported is returned for anything other than CSV, XLS or XLSX.
	ErrUnsupported = errors.New("Unsupported file format")
	// ErrMismatch is returned when the content does not match the extension.
	ErrMismatch = errors.New("file content does not match its extension")
	ErrEmpty    = errors.New("file is empty")
)

// oleMagic starts every legacy Office compound document.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// Preview is the head of a CSV upload.
type Preview struct {
	Text    string     `json:"text"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Inspection describes an accepted upload.
type Inspection struct {
	FileName    string   `json:"fileName"`
	Format      string   `json:"format"`
	ContentType string   `json:"contentType"`
	Size        int64    `json:"size"`
	Preview     *Preview `json:"preview,omitempty"`
}

// Inspect checks that data is a spreadsheet the analysis API accepts and,
// for CSV, builds a preview.
func Inspect(ctx context.Context, fileName string, data []byte) (Inspection, error) {
	if err := ctx.Err(); err != nil {
		return Inspection{}, err
	}
	if len(data) == 0 {
		return Inspection{}, ErrEmpty
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	out := Inspection{FileName: fileName, Format: strings.TrimPrefix(ext, "."), Size: int64(len(data))}

	switch ext {
	case ".csv":
		if !looksLikeText(data) {
			return Inspection{}, fmt.Errorf("%w: %s", ErrMismatch, fileName)
		}
		preview, err := csvPreview(data)
		if err != nil {
			return Inspection{}, fmt.Errorf("%w: %s: %v", ErrMismatch, fileName, err)
		}
		out.ContentType = MimeCSV
		out.Preview = preview
	case ".xlsx":
		if mapOOXMLFromZip(data) != MimeXLSX {
			return Inspection{}, fmt.Errorf("%w: %s", ErrMismatch, fileName)
		}
		out.ContentType = MimeXLSX
	case ".xls":
		if !bytes.HasPrefix(data, oleMagic) {
			return Inspection{}, fmt.Errorf("%w: %s", ErrMismatch, fileName)
		}
		out.ContentType = MimeXLS
	default:
		return Inspection{}, ErrUnsupported
	}
	return out, nil
}

func looksLikeText(data []byte) bool {
	head := data
	if len(head) > 8192 {
		head = head[:8192]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	return true
}

func csvPreview(data []byte) (*Preview, error) {
	text := string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	p := &Preview{Text: truncateRunes(text, previewChars)}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	for len(p.Rows) < previewRows {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if p.Columns == nil {
			p.Columns = rec
			continue
		}
		p.Rows = append(p.Rows, rec)
	}
	if p.Columns == nil {
		return nil, errors.New("no header row")
	}
	return p, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// PDFText returns the plain text of a PDF.
func PDFText(data []byte) (string, error) {
	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func mapOOXMLFromZip(data []byte) string {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		switch name {
		case "xl/workbook.xml":
			return MimeXLSX
		case "word/document.xml":
			return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		case "ppt/presentation.xml":
			return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
		}
	}
	return ""
}
