package observation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxDiseaseNameLen = 100

// AgeValue accepts a patient age posted either as a JSON number or string.
type AgeValue string

func (a *AgeValue) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*a = AgeValue(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return &ValidationError{Field: "patient_age", Message: "must be a whole number"}
	}
	*a = AgeValue(s)
	return nil
}

// Input is a raw observation submission from the entry form or a JSON body.
type Input struct {
	PatientAge   AgeValue `json:"patient_age" form:"patient_age"`
	DiseaseName  string   `json:"disease_name" form:"disease_name"`
	Occasion     string   `json:"occasion" form:"occasion"`
	Date         string   `json:"date" form:"date"`
	HospitalName string   `json:"hospital_name" form:"hospital_name"`
}

// Validate converts the input into an Observation, or reports the first
// offending field.
func (in Input) Validate() (*Observation, error) {
	ageStr := strings.TrimSpace(string(in.PatientAge))
	if ageStr == "" {
		return nil, invalid("patient_age", "is required")
	}
	age, err := strconv.Atoi(ageStr)
	if err != nil {
		return nil, invalid("patient_age", "must be a whole number")
	}
	if age < 0 {
		return nil, invalid("patient_age", "must not be negative")
	}

	disease := strings.TrimSpace(in.DiseaseName)
	if disease == "" {
		return nil, invalid("disease_name", "is required")
	}
	if len(disease) > maxDiseaseNameLen {
		return nil, invalid("disease_name", fmt.Sprintf("must be at most %d characters", maxDiseaseNameLen))
	}

	occasion := strings.TrimSpace(in.Occasion)
	if occasion == "" {
		return nil, invalid("occasion", "is required")
	}
	if !IsOccasion(occasion) {
		return nil, invalid("occasion", fmt.Sprintf("must be one of %q", Occasions))
	}

	dateStr := strings.TrimSpace(in.Date)
	if dateStr == "" {
		return nil, invalid("date", "is required")
	}
	date, err := ParseDate(dateStr)
	if err != nil {
		return nil, invalid("date", "must be a date in YYYY-MM-DD format")
	}

	hospital := strings.TrimSpace(in.HospitalName)
	if hospital == "" {
		return nil, invalid("hospital_name", "is required")
	}
	if _, ok := FindHospital(hospital); !ok {
		return nil, invalid("hospital_name", "unknown hospital")
	}

	return &Observation{
		PatientAge:   age,
		DiseaseName:  disease,
		Occasion:     occasion,
		Date:         date,
		HospitalName: hospital,
	}, nil
}

// ChangeListener is notified after the set of stored rows changes.
type ChangeListener func(ctx context.Context)

type Service struct {
	repo      Repository
	now       func() time.Time
	logger    zerolog.Logger
	listeners []ChangeListener
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, now: time.Now, logger: logger}
}

// SetClock overrides the clock used for trailing windows.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// OnChange registers fn to run after observations are written.
func (s *Service) OnChange(fn ChangeListener) { s.listeners = append(s.listeners, fn) }

// Today is the current calendar date in UTC.
func (s *Service) Today() time.Time { return Day(s.now().UTC()) }

func (s *Service) notify(ctx context.Context) {
	for _, fn := range s.listeners {
		fn(ctx)
	}
}

// Record validates and stores a single observation.
func (s *Service) Record(ctx context.Context, in Input) (*Observation, error) {
	o, err := in.Validate()
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create observation: %w", err)
	}
	s.logger.Debug().
		Str("observation_id", o.ID.String()).
		Str("hospital", o.HospitalName).
		Str("disease", o.DiseaseName).
		Msg("observation recorded")
	s.notify(ctx)
	return o, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Observation, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Query(ctx context.Context, f Filter) ([]*Observation, error) {
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		return nil, invalid("end_date", "must not be before start_date")
	}
	if f.Hospital != "" {
		if _, ok := FindHospital(f.Hospital); !ok {
			return nil, invalid("hospital", "unknown hospital")
		}
	}
	if f.Occasion != "" && !IsOccasion(f.Occasion) {
		return nil, invalid("occasion", fmt.Sprintf("must be one of %q", Occasions))
	}
	return s.repo.Query(ctx, f)
}

// Window returns the rows of the trailing window [today-days, today],
// optionally restricted to one hospital, with the filter that selected them.
func (s *Service) Window(ctx context.Context, days int, hospital string) ([]*Observation, Filter, error) {
	f := TrailingWindow(s.Today(), days)
	f.Hospital = hospital
	rows, err := s.Query(ctx, f)
	if err != nil {
		return nil, f, err
	}
	return rows, f, nil
}

// All returns every stored observation.
func (s *Service) All(ctx context.Context) ([]*Observation, error) {
	return s.repo.Query(ctx, Filter{})
}

// Replace clears the store and inserts obs atomically.
func (s *Service) Replace(ctx context.Context, obs []*Observation) (int64, error) {
	deleted, err := s.repo.Replace(ctx, obs)
	if err != nil {
		if errors.Is(err, ErrStorageConflict) {
			return 0, err
		}
		return 0, fmt.Errorf("replace observations: %w", err)
	}
	s.notify(ctx)
	return deleted, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
