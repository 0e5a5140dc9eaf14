package surveillance

import (
	"sort"
	"strconv"

	"github.com/samber/lo"

	"github.com/ehr/surveillance/internal/domain/observation"
	"github.com/ehr/surveillance/internal/platform/reporting"
)

// Dimension is a grouping attribute of an observation. AgeGroup and Month
// are derived per row.
type Dimension int

const (
	DimHospital Dimension = iota
	DimDisease
	DimDate
	DimOccasion
	DimAgeGroup
	DimMonth
	numDimensions
)

var dimensionNames = [numDimensions]string{"hospital_name", "disease_name", "date", "occasion", "age_group", "month"}
var dimensionLabels = [numDimensions]string{"Hospital", "Disease", "Date", "Occasion", "Age Group", "Month"}

func (d Dimension) valid() bool { return d >= 0 && d < numDimensions }

func (d Dimension) String() string {
	if !d.valid() {
		return "Dimension(" + strconv.Itoa(int(d)) + ")"
	}
	return dimensionNames[d]
}

// Label is the human readable column heading for d.
func (d Dimension) Label() string {
	if !d.valid() {
		return d.String()
	}
	return dimensionLabels[d]
}

type ageBucket struct {
	lo, hi int // [lo, hi)
	label  string
}

// Upper bound of the last bucket is inclusive.
var ageBuckets = []ageBucket{
	{0, 18, "0-18"},
	{18, 35, "19-35"},
	{35, 50, "36-50"},
	{50, 65, "51-65"},
	{65, 100, "66+"},
}

// AgeGroupLabels lists the age bucket labels in ascending order.
var AgeGroupLabels = lo.Map(ageBuckets, func(b ageBucket, _ int) string { return b.label })

// AgeGroup maps an age to its bucket label. ok is false for ages outside
// every bucket.
func AgeGroup(age int) (label string, ok bool) {
	last := len(ageBuckets) - 1
	for i, b := range ageBuckets {
		if age >= b.lo && (age < b.hi || (i == last && age == b.hi)) {
			return b.label, true
		}
	}
	return "", false
}

// MonthOf renders the calendar month of o as "01".."12".
func MonthOf(o *observation.Observation) string {
	return o.Date.Format("01")
}

func valueOf(o *observation.Observation, d Dimension) (string, bool) {
	switch d {
	case DimHospital:
		return o.HospitalName, true
	case DimDisease:
		return o.DiseaseName, true
	case DimDate:
		return o.Date.Format(observation.DateLayout), true
	case DimOccasion:
		return o.Occasion, true
	case DimAgeGroup:
		return AgeGroup(o.PatientAge)
	case DimMonth:
		return MonthOf(o), true
	}
	return "", false
}

// Key is a dimension tuple indexed by Dimension. Dimensions that were not
// requested are empty.
type Key [numDimensions]string

// Get returns the value of dimension d.
func (k Key) Get(d Dimension) string {
	if !d.valid() {
		return ""
	}
	return k[d]
}

func (k Key) less(o Key) bool {
	for i := range k {
		if k[i] != o[i] {
			return k[i] < o[i]
		}
	}
	return false
}

// Group is one aggregated tuple and its count.
type Group struct {
	Key   Key
	Count int
}

// Groups is the result of Aggregate.
type Groups struct {
	dims   []Dimension
	counts map[Key]int
}

// Aggregate groups rows by dims and counts each tuple. Empty input yields an
// empty result. Rows with an age outside every bucket are skipped only when
// DimAgeGroup is requested. Unknown dimensions are ignored.
func Aggregate(rows []*observation.Observation, dims ...Dimension) *Groups {
	dims = lo.Filter(lo.Uniq(dims), func(d Dimension, _ int) bool { return d.valid() })
	g := &Groups{dims: dims, counts: make(map[Key]int)}
	for _, o := range rows {
		var k Key
		keep := true
		for _, d := range g.dims {
			v, ok := valueOf(o, d)
			if !ok {
				keep = false
				break
			}
			k[d] = v
		}
		if keep {
			g.counts[k]++
		}
	}
	return g
}

// Dims returns the grouping dimensions.
func (g *Groups) Dims() []Dimension { return g.dims }

// Len is the number of distinct tuples.
func (g *Groups) Len() int { return len(g.counts) }

// Total is the number of rows that were counted.
func (g *Groups) Total() int {
	return lo.Sum(lo.Values(g.counts))
}

// Count returns the count of the tuple whose requested dimensions take
// values, in the order the dimensions were requested.
func (g *Groups) Count(values ...string) int {
	var k Key
	for i, d := range g.dims {
		if i < len(values) {
			k[d] = values[i]
		}
	}
	return g.counts[k]
}

// Rows returns the groups ordered by count descending, then key ascending.
func (g *Groups) Rows() []Group {
	out := g.unsorted()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key.less(out[j].Key)
	})
	return out
}

// RowsByKey returns the groups ordered by key ascending.
func (g *Groups) RowsByKey() []Group {
	out := g.unsorted()
	sort.Slice(out, func(i, j int) bool { return out[i].Key.less(out[j].Key) })
	return out
}

func (g *Groups) unsorted() []Group {
	out := make([]Group, 0, len(g.counts))
	for k, c := range g.counts {
		out = append(out, Group{Key: k, Count: c})
	}
	return out
}

// Total is a count for one value of a single dimension.
type Total struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

func (g *Groups) sums(d Dimension) map[string]int {
	sums := make(map[string]int)
	if !d.valid() {
		return sums
	}
	for k, c := range g.counts {
		sums[k[d]] += c
	}
	return sums
}

// Totals collapses the groups onto dimension d, ordered by count
// descending, then label ascending.
func (g *Groups) Totals(d Dimension) []Total {
	out := toTotals(g.sums(d))
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// Series collapses the groups onto dimension d, ordered by label. For
// DimDate this is chronological.
func (g *Groups) Series(d Dimension) []Total {
	out := toTotals(g.sums(d))
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Only keeps the groups whose dimension d equals value.
func (g *Groups) Only(d Dimension, value string) *Groups {
	out := &Groups{dims: g.dims, counts: make(map[Key]int)}
	for k, c := range g.counts {
		if k.Get(d) == value {
			out.counts[k] = c
		}
	}
	return out
}

func toTotals(m map[string]int) []Total {
	return lo.MapToSlice(m, func(label string, count int) Total {
		return Total{Label: label, Count: count}
	})
}

// TopN returns the first n totals.
func TopN(totals []Total, n int) []Total {
	if n < 0 || n >= len(totals) {
		return totals
	}
	return totals[:n]
}

// Pivot is a row dimension by column dimension count matrix with zero fill.
type Pivot struct {
	RowDim Dimension `json:"-"`
	ColDim Dimension `json:"-"`
	Rows   []string  `json:"rows"`
	Cols   []string  `json:"columns"`
	Cells  [][]int   `json:"cells"`
}

// Pivot unstacks the groups into a matrix with rows and columns sorted by
// label. Both dimensions must be among the grouping dimensions.
func (g *Groups) Pivot(rowDim, colDim Dimension) *Pivot {
	var rows, cols []string
	for k := range g.counts {
		rows = append(rows, k.Get(rowDim))
		cols = append(cols, k.Get(colDim))
	}
	rows = lo.Uniq(rows)
	cols = lo.Uniq(cols)
	sort.Strings(rows)
	sort.Strings(cols)
	return g.PivotOn(rowDim, colDim, rows, cols)
}

// PivotOn unstacks the groups over fixed row and column orders. Values not
// listed are dropped; listed values with no rows are zero filled.
func (g *Groups) PivotOn(rowDim, colDim Dimension, rows, cols []string) *Pivot {
	rowIdx := indexOf(rows)
	colIdx := indexOf(cols)
	cells := make([][]int, len(rows))
	for i := range cells {
		cells[i] = make([]int, len(cols))
	}
	for k, c := range g.counts {
		r, okr := rowIdx[k.Get(rowDim)]
		col, okc := colIdx[k.Get(colDim)]
		if okr && okc {
			cells[r][col] += c
		}
	}
	return &Pivot{RowDim: rowDim, ColDim: colDim, Rows: rows, Cols: cols, Cells: cells}
}

func indexOf(values []string) map[string]int {
	m := make(map[string]int, len(values))
	for i, v := range values {
		m[v] = i
	}
	return m
}

// Table renders the pivot as an indexed report table.
func (p *Pivot) Table() reporting.Table {
	rows := make([][]any, len(p.Cells))
	for i, r := range p.Cells {
		rows[i] = lo.Map(r, func(c int, _ int) any { return c })
	}
	// Index stays non-nil for an empty pivot so the table is still indexed.
	index := make([]string, len(p.Rows))
	copy(index, p.Rows)
	return reporting.Table{
		Columns:   append([]string(nil), p.Cols...),
		Rows:      rows,
		IndexName: p.RowDim.Label(),
		Index:     index,
	}
}
