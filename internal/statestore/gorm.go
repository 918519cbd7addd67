package statestore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Property is one row of the kv_properties table.
type Property struct {
	Key       string    `gorm:"column:name;primaryKey;size:191"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Property) TableName() string { return "kv_properties" }

type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (s *Gorm) Get(ctx context.Context, key string) (string, bool, error) {
	var row Property
	err := s.db.WithContext(ctx).Where("name = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Value, true, nil
}

func (s *Gorm) Set(ctx context.Context, key, value string) error {
	return upsert(s.db.WithContext(ctx), key, value)
}

func (s *Gorm) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("name = ?", key).Delete(&Property{}).Error
}

// IncrBy reads and writes the counter inside one transaction with a row lock
// where the dialect supports it.
func (s *Gorm) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	var next int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Property
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("name = ?", key).Take(&row).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		current, err := parseCounter(row.Value)
		if err != nil {
			return err
		}
		next = current + delta
		return upsert(tx, key, strconv.FormatInt(next, 10))
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Gorm) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).Model(&Property{}).
		Where("name LIKE ?", prefix+"%").
		Order("name asc").
		Pluck("name", &keys).Error
	return keys, err
}

func upsert(db *gorm.DB, key, value string) error {
	row := Property{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

var (
	_ Store       = (*Gorm)(nil)
	_ Incrementer = (*Gorm)(nil)
	_ Lister      = (*Gorm)(nil)
)
