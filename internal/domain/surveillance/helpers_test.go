package surveillance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/surveillance/internal/domain/observation"
	"github.com/ehr/surveillance/internal/platform/notification"
)

var fixedNow = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

const (
	harare = "Harare Central Hospital"
	mpilo  = "Mpilo Central Hospital"
	mutare = "Mutare General Hospital"
)

// -- Mock Repository --

type memRepo struct {
	rows []*observation.Observation
}

func (m *memRepo) Create(_ context.Context, o *observation.Observation) error {
	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	m.rows = append(m.rows, o)
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*observation.Observation, error) {
	for _, o := range m.rows {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, observation.ErrNotFound
}

func (m *memRepo) Query(_ context.Context, f observation.Filter) ([]*observation.Observation, error) {
	var out []*observation.Observation
	for _, o := range m.rows {
		if f.Matches(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memRepo) BulkInsert(_ context.Context, obs []*observation.Observation) error {
	m.rows = append(m.rows, obs...)
	return nil
}

func (m *memRepo) DeleteAll(_ context.Context) (int64, error) {
	n := int64(len(m.rows))
	m.rows = nil
	return n, nil
}

func (m *memRepo) Replace(ctx context.Context, obs []*observation.Observation) (int64, error) {
	n, _ := m.DeleteAll(ctx)
	return n, m.BulkInsert(ctx, obs)
}

func (m *memRepo) Ping(context.Context) error { return nil }

// -- Fake Alerter --

type fakeAlerter struct {
	mu   sync.Mutex
	keys []string
	data []map[string]string
	err  error
}

func (f *fakeAlerter) Dispatch(_ context.Context, templateID, key string, data map[string]string) (*notification.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.data = append(f.data, data)
	return &notification.Notification{TemplateID: templateID, Key: key}, f.err
}

// daysAgo returns the calendar date n days before fixedNow.
func daysAgo(n int) time.Time {
	return observation.Day(fixedNow).AddDate(0, 0, -n)
}

func obs(age int, disease, occasion string, date time.Time, hospital string) *observation.Observation {
	return &observation.Observation{
		ID:           uuid.New(),
		PatientAge:   age,
		DiseaseName:  disease,
		Occasion:     occasion,
		Date:         observation.Day(date),
		HospitalName: hospital,
	}
}

// repeat returns n copies of a row, each with its own ID.
func repeat(n int, age int, disease, occasion string, date time.Time, hospital string) []*observation.Observation {
	out := make([]*observation.Observation, n)
	for i := range out {
		out[i] = obs(age, disease, occasion, date, hospital)
	}
	return out
}

func newTestService(rows ...*observation.Observation) (*Service, *memRepo, *fakeAlerter) {
	repo := &memRepo{rows: rows}
	obsSvc := observation.NewService(repo, zerolog.Nop())
	obsSvc.SetClock(func() time.Time { return fixedNow })
	alerts := &fakeAlerter{}
	return NewService(obsSvc, alerts, zerolog.Nop()), repo, alerts
}
