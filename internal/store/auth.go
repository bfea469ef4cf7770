package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AuthRepository holds opaque credential blobs for a tenant.
type AuthRepository interface {
	// Read returns ok=false when no value is stored under name
	Read(ctx context.Context, sessionID, name string) (string, bool, error)
	Write(ctx context.Context, sessionID, name, value string) error
	Delete(ctx context.Context, sessionID, name string) error
}

type authRow struct {
	Name string `gorm:"column:name;primaryKey"`
	Data string `gorm:"column:data"`
}

type GormAuthRepository struct {
	tables *Tables
}

func NewGormAuthRepository(tables *Tables) *GormAuthRepository {
	return &GormAuthRepository{tables: tables}
}

func (r *GormAuthRepository) Read(ctx context.Context, sessionID, name string) (string, bool, error) {
	table, err := r.tables.For(ctx, sessionID, KindAuth)
	if err != nil {
		return "", false, err
	}
	var row authRow
	err = r.tables.DB().WithContext(ctx).Table(table).Where("name = ?", name).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Data, true, nil
}

func (r *GormAuthRepository) Write(ctx context.Context, sessionID, name, value string) error {
	table, err := r.tables.For(ctx, sessionID, KindAuth)
	if err != nil {
		return err
	}
	return r.tables.DB().WithContext(ctx).Table(table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"data"}),
		}).
		Create(&authRow{Name: name, Data: value}).Error
}

func (r *GormAuthRepository) Delete(ctx context.Context, sessionID, name string) error {
	table, err := r.tables.For(ctx, sessionID, KindAuth)
	if err != nil {
		return err
	}
	return r.tables.DB().WithContext(ctx).Table(table).Where("name = ?", name).Delete(&authRow{}).Error
}
