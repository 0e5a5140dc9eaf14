package sandbox

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/ehr/surveillance/internal/domain/observation"
)

// MaxSeedCount bounds a single reseed.
const MaxSeedCount = 100000

// recentDays is the window of the "recent activity" summary.
const recentDays = 7

// SeedConfig controls a reseed. Zero Count picks 80-120 rows; zero Seed
// uses the clock.
type SeedConfig struct {
	Count int   `json:"count"`
	Seed  int64 `json:"seed"`
}

// Count is a labelled tally in a SeedResult.
type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// SeedResult summarises a reseed.
type SeedResult struct {
	Deleted   int64   `json:"deleted"`
	Inserted  int     `json:"inserted"`
	Seed      int64   `json:"seed"`
	Diseases  []Count `json:"diseases"`
	Hospitals []Count `json:"hospitals"`

	RecentTotal  int `json:"recent_total"`
	RecentNew    int `json:"recent_newly_detected"`
	RecentReview int `json:"recent_review"`

	Duration string `json:"duration"`
}

// Replacer atomically swaps every stored observation for obs.
type Replacer interface {
	Replace(ctx context.Context, obs []*observation.Observation) (int64, error)
}

// Seeder regenerates the Record Store contents. Reseeds are serialised.
type Seeder struct {
	store        Replacer
	logger       zerolog.Logger
	now          func() time.Time
	defaultCount int
	mu           sync.Mutex
}

func NewSeeder(store Replacer, logger zerolog.Logger) *Seeder {
	return &Seeder{store: store, logger: logger, now: time.Now}
}

// SetClock overrides the clock used for generated dates.
func (s *Seeder) SetClock(now func() time.Time) { s.now = now }

// SetDefaultCount sets the row count used when a request leaves Count at
// zero. Zero keeps the random 80-120 default.
func (s *Seeder) SetDefaultCount(n int) { s.defaultCount = n }

// Generate produces rows for cfg without storing them.
func (s *Seeder) Generate(cfg SeedConfig) ([]*observation.Observation, int64, error) {
	if cfg.Count == 0 {
		cfg.Count = s.defaultCount
	}
	if cfg.Count < 0 || cfg.Count > MaxSeedCount {
		return nil, 0, &observation.ValidationError{
			Field:   "count",
			Message: fmt.Sprintf("must be between 0 and %d", MaxSeedCount),
		}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = s.now().UnixNano()
	}
	return NewDataGenerator(seed).Generate(cfg.Count, s.now()), seed, nil
}

// Reseed deletes every observation and inserts freshly generated ones in a
// single transaction.
func (s *Seeder) Reseed(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	start := time.Now()
	rows, seed, err := s.Generate(cfg)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted, err := s.store.Replace(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("reseed: %w", err)
	}

	res := summarize(rows, observation.Day(s.now().UTC()))
	res.Deleted = deleted
	res.Seed = seed
	res.Duration = time.Since(start).String()

	s.logger.Info().
		Int64("deleted", deleted).
		Int("inserted", res.Inserted).
		Int64("seed", seed).
		Msg("observations reseeded")
	return res, nil
}

func summarize(rows []*observation.Observation, today time.Time) *SeedResult {
	res := &SeedResult{
		Inserted:  len(rows),
		Diseases:  tally(lo.CountValuesBy(rows, func(o *observation.Observation) string { return o.DiseaseName })),
		Hospitals: tally(lo.CountValuesBy(rows, func(o *observation.Observation) string { return o.HospitalName })),
	}
	since := today.AddDate(0, 0, -recentDays)
	for _, o := range rows {
		if o.Date.Before(since) {
			continue
		}
		res.RecentTotal++
		if o.Occasion == observation.OccasionNewlyDetected {
			res.RecentNew++
		} else {
			res.RecentReview++
		}
	}
	return res
}

// tally orders counts descending, then by label.
func tally(m map[string]int) []Count {
	out := lo.MapToSlice(m, func(k string, v int) Count { return Count{Label: k, Count: v} })
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}
