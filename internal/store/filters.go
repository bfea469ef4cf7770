package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/talkincode/wamux/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// statusKeyword is the reserved row carrying the feature switch.
const statusKeyword = "_status"

// FilterRepository stores keyword auto-reply rules.
type FilterRepository interface {
	Set(ctx context.Context, sessionID, keyword, reply string) error
	Get(ctx context.Context, sessionID, keyword string) (*domain.Filter, error)
	List(ctx context.Context, sessionID string) ([]domain.Filter, error)
	Delete(ctx context.Context, sessionID, keyword string) (bool, error)
	Enabled(ctx context.Context, sessionID string) (bool, error)
	SetEnabled(ctx context.Context, sessionID string, enabled bool) error
}

type filterRow struct {
	Keyword string `gorm:"column:keyword;primaryKey"`
	Reply   string `gorm:"column:reply"`
	Status  int    `gorm:"column:status"`
}

type GormFilterRepository struct {
	tables *Tables
}

func NewGormFilterRepository(tables *Tables) *GormFilterRepository {
	return &GormFilterRepository{tables: tables}
}

func normalizeKeyword(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

func (r *GormFilterRepository) put(ctx context.Context, sessionID string, row filterRow) error {
	table, err := r.tables.For(ctx, sessionID, KindFilter)
	if err != nil {
		return err
	}
	return r.tables.DB().WithContext(ctx).Table(table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "keyword"}},
			DoUpdates: clause.AssignmentColumns([]string{"reply", "status"}),
		}).
		Create(&row).Error
}

func (r *GormFilterRepository) Set(ctx context.Context, sessionID, keyword, reply string) error {
	keyword = normalizeKeyword(keyword)
	if keyword == "" || keyword == statusKeyword || strings.TrimSpace(reply) == "" {
		return domain.ErrInvalidParameters
	}
	return r.put(ctx, sessionID, filterRow{Keyword: keyword, Reply: reply, Status: 1})
}

func (r *GormFilterRepository) Get(ctx context.Context, sessionID, keyword string) (*domain.Filter, error) {
	keyword = normalizeKeyword(keyword)
	if keyword == statusKeyword {
		return nil, nil
	}
	table, err := r.tables.For(ctx, sessionID, KindFilter)
	if err != nil {
		return nil, err
	}
	var row filterRow
	err = r.tables.DB().WithContext(ctx).Table(table).Where("keyword = ?", keyword).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.Filter{Keyword: row.Keyword, Reply: row.Reply, Status: row.Status != 0}, nil
}

func (r *GormFilterRepository) List(ctx context.Context, sessionID string) ([]domain.Filter, error) {
	table, err := r.tables.For(ctx, sessionID, KindFilter)
	if err != nil {
		return nil, err
	}
	var rows []filterRow
	err = r.tables.DB().WithContext(ctx).Table(table).
		Where("keyword <> ?", statusKeyword).
		Order("keyword").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Filter, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Filter{Keyword: row.Keyword, Reply: row.Reply, Status: row.Status != 0})
	}
	return out, nil
}

func (r *GormFilterRepository) Delete(ctx context.Context, sessionID, keyword string) (bool, error) {
	keyword = normalizeKeyword(keyword)
	if keyword == statusKeyword {
		return false, domain.ErrInvalidParameters
	}
	table, err := r.tables.For(ctx, sessionID, KindFilter)
	if err != nil {
		return false, err
	}
	res := r.tables.DB().WithContext(ctx).Table(table).Where("keyword = ?", keyword).Delete(&filterRow{})
	return res.RowsAffected > 0, res.Error
}

func (r *GormFilterRepository) Enabled(ctx context.Context, sessionID string) (bool, error) {
	table, err := r.tables.For(ctx, sessionID, KindFilter)
	if err != nil {
		return false, err
	}
	var row filterRow
	err = r.tables.DB().WithContext(ctx).Table(table).Where("keyword = ?", statusKeyword).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row.Status != 0, nil
}

func (r *GormFilterRepository) SetEnabled(ctx context.Context, sessionID string, enabled bool) error {
	return r.put(ctx, sessionID, filterRow{Keyword: statusKeyword, Status: boolInt(enabled)})
}
