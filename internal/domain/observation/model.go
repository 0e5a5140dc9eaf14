package observation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar date format used on the wire and in reports.
const DateLayout = "2006-01-02"

const (
	OccasionNewlyDetected = "Newly detected"
	OccasionReview        = "Review"
)

// Occasions lists the accepted visit types in display order.
var Occasions = []string{OccasionNewlyDetected, OccasionReview}

// Hospital is an entry of the fixed hospital table.
type Hospital struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Hospitals is the process-wide hospital table. Order is significant: views
// and pivots list hospitals in this order.
var Hospitals = []Hospital{
	{Name: "Harare Central Hospital", Lat: -17.8216, Lon: 31.0492},
	{Name: "Parirenyatwa Group of Hospitals", Lat: -17.7840, Lon: 31.0456},
	{Name: "Chitungwiza Central Hospital", Lat: -18.0130, Lon: 31.0776},
	{Name: "Mpilo Central Hospital", Lat: -20.1619, Lon: 28.5906},
	{Name: "Mutare General Hospital", Lat: -18.9707, Lon: 32.6731},
	{Name: "Gweru Provincial Hospital", Lat: -19.4620, Lon: 29.8301},
	{Name: "Bulawayo Central Hospital", Lat: -20.1505, Lon: 28.5665},
}

// MapCenter is the centre of the country-wide map view.
var MapCenter = Hospital{Name: "Zimbabwe", Lat: -19.0154, Lon: 29.1549}

var hospitalIndex = func() map[string]Hospital {
	m := make(map[string]Hospital, len(Hospitals))
	for _, h := range Hospitals {
		m[h.Name] = h
	}
	return m
}()

// FindHospital looks up a hospital by exact name.
func FindHospital(name string) (Hospital, bool) {
	h, ok := hospitalIndex[name]
	return h, ok
}

// HospitalNames returns the hospital names in table order.
func HospitalNames() []string {
	names := make([]string, len(Hospitals))
	for i, h := range Hospitals {
		names[i] = h.Name
	}
	return names
}

// IsOccasion reports whether s is an accepted visit type.
func IsOccasion(s string) bool {
	return s == OccasionNewlyDetected || s == OccasionReview
}

// Observation maps to the disease_observations table. Rows are immutable
// once created.
type Observation struct {
	ID           uuid.UUID `db:"id" gorm:"type:uuid;primaryKey" json:"id"`
	PatientAge   int       `db:"patient_age" gorm:"column:patient_age;not null" json:"patient_age"`
	DiseaseName  string    `db:"disease_name" gorm:"column:disease_name;size:100;not null" json:"disease_name"`
	Occasion     string    `db:"occasion" gorm:"column:occasion;size:20;not null" json:"occasion"`
	Date         time.Time `db:"observed_on" gorm:"column:observed_on;type:date;not null;index" json:"-"`
	HospitalName string    `db:"hospital_name" gorm:"column:hospital_name;size:100;not null;index" json:"hospital_name"`
	CreatedAt    time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Observation) TableName() string { return "disease_observations" }

// MarshalJSON renders Date as a plain calendar date.
func (o Observation) MarshalJSON() ([]byte, error) {
	type alias Observation
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias: alias(o), Date: o.Date.Format(DateLayout)})
}

// Filter narrows a Query. Zero values mean "no constraint"; Start and End are
// inclusive calendar dates.
type Filter struct {
	Start    time.Time
	End      time.Time
	Hospital string
	Occasion string
	Disease  string
}

// Matches applies the filter to a single row.
func (f Filter) Matches(o *Observation) bool {
	if !f.Start.IsZero() && o.Date.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && o.Date.After(f.End) {
		return false
	}
	if f.Hospital != "" && o.HospitalName != f.Hospital {
		return false
	}
	if f.Occasion != "" && o.Occasion != f.Occasion {
		return false
	}
	if f.Disease != "" && o.DiseaseName != f.Disease {
		return false
	}
	return true
}

// Day truncates t to a UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

// TrailingWindow returns the inclusive range [today-days, today].
func TrailingWindow(today time.Time, days int) Filter {
	end := Day(today)
	return Filter{Start: end.AddDate(0, 0, -days), End: end}
}
