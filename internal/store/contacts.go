package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/talkincode/wamux/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContactRepository is the phone-number to linked-id mapping of a tenant.
type ContactRepository interface {
	// Upsert replaces the lid stored for pn
	Upsert(ctx context.Context, sessionID string, c domain.Contact) error

	// Lookup matches value exactly against either column
	Lookup(ctx context.Context, sessionID, value string) (*domain.Contact, error)

	// LookupPrefix matches rows whose column starts with prefix. column is "pn" or "lid".
	LookupPrefix(ctx context.Context, sessionID, column, prefix string) (*domain.Contact, error)

	List(ctx context.Context, sessionID string) ([]domain.Contact, error)
}

type GormContactRepository struct {
	tables *Tables
}

func NewGormContactRepository(tables *Tables) *GormContactRepository {
	return &GormContactRepository{tables: tables}
}

func (r *GormContactRepository) Upsert(ctx context.Context, sessionID string, c domain.Contact) error {
	if c.PN == "" || c.LID == "" {
		return domain.ErrInvalidParameters
	}
	table, err := r.tables.For(ctx, sessionID, KindContacts)
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

func (r *GormContactRepository) Lookup(ctx context.Context, sessionID, value string) (*domain.Contact, error) {
	table, err := r.tables.For(ctx, sessionID, KindContacts)
	if err != nil {
		return nil, err
	}
	var c domain.Contact
	err = r.tables.DB().WithContext(ctx).Table(table).
		Where("pn = ? OR lid = ?", value, value).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *GormContactRepository) LookupPrefix(ctx context.Context, sessionID, column, prefix string) (*domain.Contact, error) {
	if column != "pn" && column != "lid" {
		return nil, errors.Errorf("unknown contact column %q", column)
	}
	if prefix == "" {
		return nil, nil
	}
	table, err := r.tables.For(ctx, sessionID, KindContacts)
	if err != nil {
		return nil, err
	}
	var c domain.Contact
	err = r.tables.DB().WithContext(ctx).Table(table).
		Where(column+` LIKE ? ESCAPE '\'`, likeEscaper.Replace(prefix)+"%").
		Order(column).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *GormContactRepository) List(ctx context.Context, sessionID string) ([]domain.Contact, error) {
	table, err := r.tables.For(ctx, sessionID, KindContacts)
	if err != nil {
		return nil, err
	}
	var rows []domain.Contact
	err = r.tables.DB().WithContext(ctx).Table(table).Order("pn").Find(&rows).Error
	return rows, err
}
