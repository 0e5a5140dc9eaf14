// Package sandbox generates synthetic disease observations for demos and
// local development, and reseeds the Record Store with them.
package sandbox

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/surveillance/internal/domain/observation"
)

type weighted[T any] struct {
	value  T
	weight float64
}

// diseaseWeights is the prevalence table.
var diseaseWeights = []weighted[string]{
	{"Malaria", 0.25},
	{"Tuberculosis", 0.15},
	{"Diarrhea", 0.15},
	{"COVID-19", 0.12},
	{"Pneumonia", 0.10},
	{"Cholera", 0.08},
	{"Typhoid", 0.06},
	{"Dengue Fever", 0.04},
	{"Hepatitis B", 0.03},
	{"Influenza", 0.02},
}

type ageRange struct{ lo, hi int }

var ageWeights = []weighted[ageRange]{
	{ageRange{1, 10}, 0.15},
	{ageRange{11, 20}, 0.12},
	{ageRange{21, 40}, 0.35},
	{ageRange{41, 60}, 0.25},
	{ageRange{61, 80}, 0.13},
}

var occasionWeights = []weighted[string]{
	{observation.OccasionNewlyDetected, 0.8},
	{observation.OccasionReview, 0.2},
}

const (
	// HistoryDays is the span the generated dates cover, ending yesterday.
	HistoryDays = 30

	minRandomCount = 80
	maxRandomCount = 120
)

// Diseases lists the diseases the generator draws from.
func Diseases() []string {
	out := make([]string, len(diseaseWeights))
	for i, d := range diseaseWeights {
		out[i] = d.value
	}
	return out
}

// DataGenerator draws weighted random observations. It is not safe for
// concurrent use.
type DataGenerator struct {
	rng *rand.Rand
}

func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func pick[T any](rng *rand.Rand, table []weighted[T]) T {
	total := 0.0
	for _, w := range table {
		total += w.weight
	}
	r := rng.Float64() * total
	for _, w := range table {
		if r < w.weight {
			return w.value
		}
		r -= w.weight
	}
	return table[len(table)-1].value
}

// RandomCount is the row count used when none is requested.
func (g *DataGenerator) RandomCount() int {
	return minRandomCount + g.rng.Intn(maxRandomCount-minRandomCount+1)
}

func (g *DataGenerator) age() int {
	r := pick(g.rng, ageWeights)
	return r.lo + g.rng.Intn(r.hi-r.lo+1)
}

// datePool spreads count rows over the HistoryDays days before today, with
// later days weighted up to 1.5x. The pool may be slightly shorter than
// count; callers draw the remainder from it at random.
func (g *DataGenerator) datePool(today time.Time, count int) []time.Time {
	start := today.AddDate(0, 0, -HistoryDays)
	var pool []time.Time
	for i := 0; i < HistoryDays; i++ {
		weight := 1.0 + float64(i)/HistoryDays*0.5
		n := int(float64(count) * weight / HistoryDays / 1.25)
		if n < 1 {
			n = 1
		}
		day := start.AddDate(0, 0, i)
		for j := 0; j < n; j++ {
			pool = append(pool, day)
		}
	}
	g.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > count {
		pool = pool[:count]
	}
	return pool
}

// Generate returns count observations dated relative to now. A count of 0
// or less picks a random count between 80 and 120.
func (g *DataGenerator) Generate(count int, now time.Time) []*observation.Observation {
	if count <= 0 {
		count = g.RandomCount()
	}
	today := observation.Day(now.UTC())
	dates := g.datePool(today, count)
	hospitals := observation.HospitalNames()

	out := make([]*observation.Observation, count)
	for i := range out {
		var date time.Time
		if i < len(dates) {
			date = dates[i]
		} else {
			date = dates[g.rng.Intn(len(dates))]
		}
		out[i] = &observation.Observation{
			ID:           uuid.New(),
			PatientAge:   g.age(),
			DiseaseName:  pick(g.rng, diseaseWeights),
			Occasion:     pick(g.rng, occasionWeights),
			Date:         date,
			HospitalName: hospitals[g.rng.Intn(len(hospitals))],
			CreatedAt:    now,
		}
	}
	return out
}
