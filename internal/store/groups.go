package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GroupRow is one cached group metadata blob.
type GroupRow struct {
	ID   string `gorm:"column:id;primaryKey"`
	Data string `gorm:"column:data"`
}

// GroupRepository persists raw group metadata documents; merging happens above it.
type GroupRepository interface {
	Get(ctx context.Context, sessionID, groupID string) (*GroupRow, error)
	Put(ctx context.Context, sessionID string, row GroupRow) error
	List(ctx context.Context, sessionID string) ([]GroupRow, error)
	Delete(ctx context.Context, sessionID, groupID string) error
}

type GormGroupRepository struct {
	tables *Tables
}

func NewGormGroupRepository(tables *Tables) *GormGroupRepository {
	return &GormGroupRepository{tables: tables}
}

func (r *GormGroupRepository) Get(ctx context.Context, sessionID, groupID string) (*GroupRow, error) {
	table, err := r.tables.For(ctx, sessionID, KindGroups)
	if err != nil {
		return nil, err
	}
	var row GroupRow
	err = r.tables.DB().WithContext(ctx).Table(table).Where("id = ?", groupID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *GormGroupRepository) Put(ctx context.Context, sessionID string, row GroupRow) error {
	table, err := r.tables.For(ctx, sessionID, KindGroups)
	if err != nil {
		return err
	}
	return r.tables.DB().WithContext(ctx).Table(table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data"}),
		}).
		Create(&row).Error
}

func (r *GormGroupRepository) List(ctx context.Context, sessionID string) ([]GroupRow, error) {
	table, err := r.tables.For(ctx, sessionID, KindGroups)
	if err != nil {
		return nil, err
	}
	var rows []GroupRow
	err = r.tables.DB().WithContext(ctx).Table(table).Order("id").Find(&rows).Error
	return rows, err
}

func (r *GormGroupRepository) Delete(ctx context.Context, sessionID, groupID string) error {
	table, err := r.tables.For(ctx, sessionID, KindGroups)
	if err != nil {
		return err
	}
	return r.tables.DB().WithContext(ctx).Table(table).Where("id = ?", groupID).Delete(&GroupRow{}).Error
}
