package reporting

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrReportNotFound   = errors.New("report not found")
	ErrInvalidParameter = errors.New("invalid report parameter")
)

// ReportDefinition describes a downloadable report.
type ReportDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`
	// Indexed reports carry a leading row-label column.
	Indexed bool `json:"indexed"`
	// SheetName overrides the spreadsheet sheet name.
	SheetName string `json:"sheet_name,omitempty"`
	// FileName is the artifact base name when the builder does not set one.
	FileName string   `json:"file_name"`
	Formats  []Format `json:"formats"`
}

var allFormats = []Format{FormatExcel, FormatPDF}

// PredefinedReports is the list of available reports.
var PredefinedReports = []ReportDefinition{
	{
		ID:          "frequent-diseases",
		Name:        "Most Frequent Diseases",
		Description: "Case count per disease over the last 3 days",
		Parameters:  []string{},
		FileName:    "most_frequent_diseases",
		Formats:     allFormats,
	},
	{
		ID:          "age-risk-analysis",
		Name:        "Age Risk Analysis",
		Description: "Case count per age group and disease over all observations",
		Parameters:  []string{},
		Indexed:     true,
		FileName:    "age_risk_analysis",
		Formats:     allFormats,
	},
	{
		ID:          "seasonal-patterns",
		Name:        "Seasonal Patterns",
		Description: "Case count per calendar month and disease, optionally limited to a date range",
		Parameters:  []string{"start_date", "end_date"},
		Indexed:     true,
		FileName:    "seasonal_patterns",
		Formats:     allFormats,
	},
	{
		ID:          "disease-report",
		Name:        "Disease Report",
		Description: "Every observation, or only those recorded with the given occasion",
		Parameters:  []string{"occasion"},
		FileName:    "all_diseases_report",
		Formats:     allFormats,
	},
	{
		ID:          "predictions",
		Name:        "Prediction Results",
		Description: "Predicted case counts and risk status per disease",
		Parameters:  []string{},
		SheetName:   "Predictions",
		FileName:    "prediction_results",
		Formats:     allFormats,
	},
}

// FindReport looks up a report by ID.
func FindReport(id string) *ReportDefinition {
	for i := range PredefinedReports {
		if PredefinedReports[i].ID == id {
			return &PredefinedReports[i]
		}
	}
	return nil
}

// Built is the output of a Builder. An empty BaseName falls back to the
// definition's FileName.
type Built struct {
	Table    Table
	BaseName string
}

// Builder assembles a report table from its declared parameters. Parameter
// problems are reported by wrapping ErrInvalidParameter.
type Builder func(ctx context.Context, params map[string]string) (*Built, error)

// Catalog binds predefined reports to the builders that produce them.
type Catalog struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

func NewCatalog() *Catalog {
	return &Catalog{builders: make(map[string]Builder)}
}

// Register attaches b to a predefined report.
func (c *Catalog) Register(id string, b Builder) error {
	if FindReport(id) == nil {
		return fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builders[id] = b
	return nil
}

// Definitions returns the predefined reports that have a builder.
func (c *Catalog) Definitions() []ReportDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ReportDefinition, 0, len(PredefinedReports))
	for _, def := range PredefinedReports {
		if _, ok := c.builders[def.ID]; ok {
			out = append(out, def)
		}
	}
	return out
}

// Build runs the report's builder with only its declared parameters.
func (c *Catalog) Build(ctx context.Context, id string, params map[string]string) (*Built, *ReportDefinition, error) {
	def := FindReport(id)
	c.mu.RLock()
	b, ok := c.builders[id]
	c.mu.RUnlock()
	if def == nil || !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}

	declared := make(map[string]string, len(def.Parameters))
	for _, p := range def.Parameters {
		if v, ok := params[p]; ok && v != "" {
			declared[p] = v
		}
	}

	built, err := b(ctx, declared)
	if err != nil {
		return nil, def, fmt.Errorf("build %s: %w", id, err)
	}
	if built.Table.Indexed() != def.Indexed {
		return nil, def, fmt.Errorf("build %s: indexed=%t, want %t", id, built.Table.Indexed(), def.Indexed)
	}
	if built.BaseName == "" {
		built.BaseName = def.FileName
	}
	return built, def, nil
}

// Export builds a report and renders it in format.
func (c *Catalog) Export(ctx context.Context, id string, format Format, params map[string]string) (*Artifact, error) {
	built, def, err := c.Build(ctx, id, params)
	if err != nil {
		return nil, err
	}
	return Render(built.Table, format, Options{BaseName: built.BaseName, SheetName: def.SheetName})
}
