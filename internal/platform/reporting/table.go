package reporting

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrRaggedTable = errors.New("ragged table")

// Table is a rectangular report. When Index is set the table is indexed:
// IndexName heads an extra leading column holding Index[i] for row i.
type Table struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	IndexName string   `json:"index_name,omitempty"`
	Index     []string `json:"index,omitempty"`
}

// Indexed reports whether the table carries row labels.
func (t Table) Indexed() bool { return t.Index != nil }

// Validate checks that every row has one value per column and that an
// index, if present, labels every row.
func (t Table) Validate() error {
	for i, r := range t.Rows {
		if len(r) != len(t.Columns) {
			return fmt.Errorf("%w: row %d has %d values for %d columns", ErrRaggedTable, i, len(r), len(t.Columns))
		}
	}
	if t.Indexed() && len(t.Index) != len(t.Rows) {
		return fmt.Errorf("%w: %d index labels for %d rows", ErrRaggedTable, len(t.Index), len(t.Rows))
	}
	return nil
}

// Header returns the rendered header row.
func (t Table) Header() []string {
	if !t.Indexed() {
		return t.Columns
	}
	return append([]string{t.IndexName}, t.Columns...)
}

// Row returns a copy of rendered row i, including its index label when
// indexed.
func (t Table) Row(i int) []any {
	if !t.Indexed() {
		return append([]any(nil), t.Rows[i]...)
	}
	return append([]any{t.Index[i]}, t.Rows[i]...)
}

// FormatCell renders a cell value as text.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format("2006-01-02")
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Format is an export artifact kind.
type Format string

const (
	FormatExcel Format = "excel"
	FormatPDF   Format = "pdf"
)

const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypePDF  = "application/pdf"
)

// ParseFormat accepts "excel" (or "xlsx") and "pdf".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "excel", "xlsx":
		return FormatExcel, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("unsupported format %q: expected excel or pdf", s)
}

// Artifact is a rendered export.
type Artifact struct {
	Body        []byte
	ContentType string
	FileName    string
}

// Options controls rendering.
type Options struct {
	// BaseName is the file name without extension.
	BaseName string
	// SheetName names the spreadsheet sheet. Defaults to "Report".
	SheetName string
}

// Render produces an artifact for t in the requested format.
func Render(t Table, format Format, opts Options) (*Artifact, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if opts.BaseName == "" {
		opts.BaseName = "report"
	}
	switch format {
	case FormatExcel:
		body, err := RenderXLSX(t, opts.SheetName)
		if err != nil {
			return nil, err
		}
		return &Artifact{Body: body, ContentType: ContentTypeXLSX, FileName: opts.BaseName + ".xlsx"}, nil
	case FormatPDF:
		body, err := RenderPDF(t)
		if err != nil {
			return nil, err
		}
		return &Artifact{Body: body, ContentType: ContentTypePDF, FileName: opts.BaseName + ".pdf"}, nil
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}
