package surveillance

import (
	"fmt"

	"github.com/ehr/surveillance/internal/domain/observation"
)

// RiskLevel is derived from a case count and never stored.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

const (
	lowMax    = 5
	mediumMax = 10
)

// Classify maps a case count to a risk tier: up to 5 is Low, 6 to 10 is
// Medium, above 10 is High.
func Classify(count int) RiskLevel {
	switch {
	case count <= lowMax:
		return RiskLow
	case count <= mediumMax:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// Color is the map marker colour for the tier.
func (r RiskLevel) Color() string {
	switch r {
	case RiskHigh:
		return "red"
	case RiskMedium:
		return "orange"
	default:
		return "blue"
	}
}

// ClassifyCounts classifies every entry of counts.
func ClassifyCounts(counts map[string]int) map[string]RiskLevel {
	out := make(map[string]RiskLevel, len(counts))
	for k, c := range counts {
		out[k] = Classify(c)
	}
	return out
}

// HospitalRisk is the case count and risk tier of one hospital over a window.
type HospitalRisk struct {
	Hospital string    `json:"hospital"`
	Cases    int       `json:"cases"`
	Risk     RiskLevel `json:"risk_level"`
}

// RiskByHospital counts rows per hospital and classifies every hospital in
// the table, in table order. Hospitals without rows are Low.
func RiskByHospital(rows []*observation.Observation) []HospitalRisk {
	g := Aggregate(rows, DimHospital)
	out := make([]HospitalRisk, 0, len(observation.Hospitals))
	for _, h := range observation.Hospitals {
		n := g.Count(h.Name)
		out = append(out, HospitalRisk{Hospital: h.Name, Cases: n, Risk: Classify(n)})
	}
	return out
}

// Marker is a hospital pin on the risk map.
type Marker struct {
	Hospital string    `json:"hospital"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	Cases    int       `json:"cases"`
	Risk     RiskLevel `json:"risk_level"`
	Color    string    `json:"color"`
	Popup    string    `json:"popup"`
}

// Markers builds map pins for the given risk rows. Rows naming an unknown
// hospital are skipped.
func Markers(risks []HospitalRisk) []Marker {
	out := make([]Marker, 0, len(risks))
	for _, r := range risks {
		h, ok := observation.FindHospital(r.Hospital)
		if !ok {
			continue
		}
		out = append(out, Marker{
			Hospital: h.Name,
			Lat:      h.Lat,
			Lon:      h.Lon,
			Cases:    r.Cases,
			Risk:     r.Risk,
			Color:    r.Risk.Color(),
			Popup:    fmt.Sprintf("%s: %d cases (Risk: %s)", h.Name, r.Cases, r.Risk),
		})
	}
	return out
}
