package sandbox

import (
	"testing"
	"time"

	"github.com/ehr/surveillance/internal/domain/observation"
)

var fixedNow = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

func TestGenerate_Count(t *testing.T) {
	rows := NewDataGenerator(1).Generate(100, fixedNow)
	if len(rows) != 100 {
		t.Fatalf("expected 100 rows, got %d", len(rows))
	}
}

func TestGenerate_RandomCount(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		rows := NewDataGenerator(seed).Generate(0, fixedNow)
		if len(rows) < 80 || len(rows) > 120 {
			t.Fatalf("seed %d: expected 80-120 rows, got %d", seed, len(rows))
		}
	}
}

func TestGenerate_RowsAreValid(t *testing.T) {
	rows := NewDataGenerator(7).Generate(500, fixedNow)
	today := observation.Day(fixedNow)
	first := today.AddDate(0, 0, -HistoryDays)
	diseases := make(map[string]bool)
	for _, d := range Diseases() {
		diseases[d] = true
	}
	ids := make(map[string]bool)

	for _, o := range rows {
		if o.PatientAge < 1 || o.PatientAge > 80 {
			t.Errorf("age %d out of range", o.PatientAge)
		}
		if !diseases[o.DiseaseName] {
			t.Errorf("unexpected disease %q", o.DiseaseName)
		}
		if o.Occasion != observation.OccasionNewlyDetected && o.Occasion != observation.OccasionReview {
			t.Errorf("unexpected occasion %q", o.Occasion)
		}
		if _, ok := observation.FindHospital(o.HospitalName); !ok {
			t.Errorf("unexpected hospital %q", o.HospitalName)
		}
		if o.Date.Before(first) || !o.Date.Before(today) {
			t.Errorf("date %s outside [%s, %s)", o.Date.Format(observation.DateLayout),
				first.Format(observation.DateLayout), today.Format(observation.DateLayout))
		}
		if ids[o.ID.String()] {
			t.Errorf("duplicate id %s", o.ID)
		}
		ids[o.ID.String()] = true
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := NewDataGenerator(42).Generate(50, fixedNow)
	b := NewDataGenerator(42).Generate(50, fixedNow)
	for i := range a {
		if a[i].DiseaseName != b[i].DiseaseName || a[i].PatientAge != b[i].PatientAge ||
			!a[i].Date.Equal(b[i].Date) || a[i].HospitalName != b[i].HospitalName {
			t.Fatalf("row %d differs between runs with the same seed", i)
		}
	}
}

func TestGenerate_WeightedDistribution(t *testing.T) {
	rows := NewDataGenerator(3).Generate(5000, fixedNow)
	counts := make(map[string]int)
	review := 0
	for _, o := range rows {
		counts[o.DiseaseName]++
		if o.Occasion == observation.OccasionReview {
			review++
		}
	}
	if counts["Malaria"] <= counts["Influenza"] {
		t.Errorf("expected Malaria (%d) to outnumber Influenza (%d)", counts["Malaria"], counts["Influenza"])
	}
	if review < 750 || review > 1250 {
		t.Errorf("expected about 20%% reviews, got %d of 5000", review)
	}
}

func TestDatePool_LaterDaysHeavier(t *testing.T) {
	g := NewDataGenerator(1)
	today := observation.Day(fixedNow)
	pool := g.datePool(today, 3000)
	if len(pool) > 3000 {
		t.Fatalf("expected pool trimmed to 3000, got %d", len(pool))
	}
	perDay := make(map[time.Time]int)
	for _, d := range pool {
		perDay[d]++
	}
	if len(perDay) != HistoryDays {
		t.Errorf("expected %d distinct days, got %d", HistoryDays, len(perDay))
	}
	oldest := perDay[today.AddDate(0, 0, -HistoryDays)]
	newest := perDay[today.AddDate(0, 0, -1)]
	if newest <= oldest {
		t.Errorf("expected newest day (%d) heavier than oldest (%d)", newest, oldest)
	}
}

func TestDatePool_AtLeastOnePerDay(t *testing.T) {
	pool := NewDataGenerator(1).datePool(observation.Day(fixedNow), 1)
	if len(pool) != 1 {
		t.Fatalf("expected pool trimmed to 1, got %d", len(pool))
	}
}
