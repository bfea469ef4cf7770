package store

import (
	"context"

	"github.com/talkincode/wamux/internal/domain"
	"gorm.io/gorm/clause"
)

// IdentityListRepository is a per-tenant set of identities kept in both forms.
// It backs the sudo and ban lists.
type IdentityListRepository interface {
	// Contains reports whether any of ids appears in either column
	Contains(ctx context.Context, sessionID string, ids ...string) (bool, error)
	Add(ctx context.Context, sessionID string, c domain.Contact) error
	// Remove deletes rows matching id in either column and reports whether any existed
	Remove(ctx context.Context, sessionID, id string) (bool, error)
	List(ctx context.Context, sessionID string) ([]domain.Contact, error)
}

type GormIdentityListRepository struct {
	tables *Tables
	kind   Kind
}

func NewSudoRepository(tables *Tables) *GormIdentityListRepository {
	return &GormIdentityListRepository{tables: tables, kind: KindSudo}
}

func NewBanRepository(tables *Tables) *GormIdentityListRepository {
	return &GormIdentityListRepository{tables: tables, kind: KindBan}
}

func (r *GormIdentityListRepository) Contains(ctx context.Context, sessionID string, ids ...string) (bool, error) {
	var want []string
	for _, id := range ids {
		if id != "" {
			want = append(want, id)
		}
	}
	if len(want) == 0 {
		return false, nil
	}
	table, err := r.tables.For(ctx, sessionID, r.kind)
	if err != nil {
		return false, err
	}
	var count int64
	err = r.tables.DB().WithContext(ctx).Table(table).
		Where("pn IN ? OR lid IN ?", want, want).
		Count(&count).Error
	return count > 0, err
}

func (r *GormIdentityListRepository) Add(ctx context.Context, sessionID string, c domain.Contact) error {
	if c.PN == "" {
		return domain.ErrInvalidParameters
	}
	table, err := r.tables.For(ctx, sessionID, r.kind)
	if err != nil {
		return err
	}
	return r.tables.DB().WithContext(ctx).Table(table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pn"}},
			DoUpdates: clause.AssignmentColumns([]string{"lid"}),
		}).
		Create(&c).Error
}

func (r *GormIdentityListRepository) Remove(ctx context.Context, sessionID, id string) (bool, error) {
	table, err := r.tables.For(ctx, sessionID, r.kind)
	if err != nil {
		return false, err
	}
	res := r.tables.DB().WithContext(ctx).Table(table).
		Where("pn = ? OR lid = ?", id, id).
		Delete(&domain.Contact{})
	return res.RowsAffected > 0, res.Error
}

func (r *GormIdentityListRepository) List(ctx context.Context, sessionID string) ([]domain.Contact, error) {
	table, err := r.tables.For(ctx, sessionID, r.kind)
	if err != nil {
		return nil, err
	}
	var rows []domain.Contact
	err = r.tables.DB().WithContext(ctx).Table(table).Order("pn").Find(&rows).Error
	return rows, err
}
