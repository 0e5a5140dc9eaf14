package surveillance

import (
	"fmt"
	"time"

	"github.com/ehr/surveillance/internal/domain/observation"
)

// Jump threshold as a ratio: current >= previous * 6/5.
const (
	jumpNum = 6
	jumpDen = 5
)

// Warning flags a day whose case count jumped against the previous recorded
// day of the same disease.
type Warning struct {
	Disease  string    `json:"disease"`
	Date     time.Time `json:"-"`
	Day      string    `json:"date"`
	Previous int       `json:"previous_count"`
	Current  int       `json:"current_count"`
	Message  string    `json:"message"`
}

// DetectTrends scans each disease's daily series (days with at least one
// case, ascending) and warns on day i >= 1 when count[i] >= 1.2 * count[i-1].
// Diseases are visited in descending total count order.
func DetectTrends(rows []*observation.Observation) []Warning {
	g := Aggregate(rows, DimDisease, DimDate)
	var out []Warning
	for _, disease := range g.Totals(DimDisease) {
		series := g.Only(DimDisease, disease.Label).Series(DimDate)
		for i := 1; i < len(series); i++ {
			prev, cur := series[i-1].Count, series[i].Count
			if cur*jumpDen < prev*jumpNum {
				continue
			}
			day, _ := observation.ParseDate(series[i].Label)
			out = append(out, Warning{
				Disease:  disease.Label,
				Date:     day,
				Day:      series[i].Label,
				Previous: prev,
				Current:  cur,
				Message:  fmt.Sprintf("Warning: sharp increase in %s cases on %s", disease.Label, series[i].Label),
			})
		}
	}
	return out
}
