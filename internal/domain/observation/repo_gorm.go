package observation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const bulkInsertBatch = 500

type observationRepoGorm struct{ db *gorm.DB }

// OpenSQLite opens (or creates) the embedded store and migrates its schema.
func OpenSQLite(path string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := gdb.AutoMigrate(&Observation{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return gdb, nil
}

func NewRepoGorm(gdb *gorm.DB) Repository {
	return &observationRepoGorm{db: gdb}
}

func (r *observationRepoGorm) Create(ctx context.Context, o *Observation) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return mapGormError(r.db.WithContext(ctx).Create(o).Error)
}

func (r *observationRepoGorm) GetByID(ctx context.Context, id uuid.UUID) (*Observation, error) {
	var o Observation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Date = Day(o.Date)
	return &o, nil
}

func applyFilter(q *gorm.DB, f Filter) *gorm.DB {
	if !f.Start.IsZero() {
		q = q.Where("observed_on >= ?", f.Start)
	}
	if !f.End.IsZero() {
		q = q.Where("observed_on <= ?", f.End)
	}
	if f.Hospital != "" {
		q = q.Where("hospital_name = ?", f.Hospital)
	}
	if f.Occasion != "" {
		q = q.Where("occasion = ?", f.Occasion)
	}
	if f.Disease != "" {
		q = q.Where("disease_name = ?", f.Disease)
	}
	return q
}

func (r *observationRepoGorm) Query(ctx context.Context, f Filter) ([]*Observation, error) {
	var items []*Observation
	q := applyFilter(r.db.WithContext(ctx).Model(&Observation{}), f)
	if err := q.Order("observed_on, created_at, id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	for _, o := range items {
		o.Date = Day(o.Date)
	}
	return items, nil
}

func (r *observationRepoGorm) BulkInsert(ctx context.Context, obs []*Observation) error {
	return r.bulkInsert(r.db.WithContext(ctx), obs)
}

func (r *observationRepoGorm) bulkInsert(tx *gorm.DB, obs []*Observation) error {
	if len(obs) == 0 {
		return nil
	}
	for _, o := range obs {
		if o.ID == uuid.Nil {
			o.ID = uuid.New()
		}
	}
	return mapGormError(tx.CreateInBatches(obs, bulkInsertBatch).Error)
}

func (r *observationRepoGorm) DeleteAll(ctx context.Context) (int64, error) {
	return r.deleteAll(r.db.WithContext(ctx))
}

func (r *observationRepoGorm) deleteAll(tx *gorm.DB) (int64, error) {
	res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Observation{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete observations: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *observationRepoGorm) Replace(ctx context.Context, obs []*Observation) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := r.deleteAll(tx)
		if err != nil {
			return err
		}
		deleted = n
		return r.bulkInsert(tx, obs)
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r *observationRepoGorm) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func mapGormError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrStorageConflict, err)
	}
	return err
}
