package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/talkincode/wamux/internal/domain"
	"gorm.io/gorm"
)

// SessionRepository is the durable tenant registry.
type SessionRepository interface {
	// Create inserts a new row; a duplicate id surfaces ErrSessionExists
	Create(ctx context.Context, s *domain.Session) error

	// Get loads a row by session id or phone number
	Get(ctx context.Context, idOrPhone string) (*domain.Session, error)

	List(ctx context.Context) ([]*domain.Session, error)

	// ListRestorable returns rows that should be reconnected at startup
	ListRestorable(ctx context.Context) ([]*domain.Session, error)

	UpdateStatus(ctx context.Context, id string, status domain.SessionStatus) error
	UpdateUserInfo(ctx context.Context, id string, info *domain.UserInfo) error
	Delete(ctx context.Context, id string) error
}

// GormSessionRepository is the GORM implementation of SessionRepository
type GormSessionRepository struct {
	db *gorm.DB
}

func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ? OR phone_number = ?", s.ID, s.PhoneNumber).
		Count(&count).Error
	if err != nil {
		return errors.Wrap(err, "check session")
	}
	if count > 0 {
		return domain.ErrSessionExists
	}
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *GormSessionRepository) Get(ctx context.Context, idOrPhone string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).
		Where("id = ? OR phone_number = ?", idOrPhone, idOrPhone).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormSessionRepository) List(ctx context.Context) ([]*domain.Session, error) {
	var rows []*domain.Session
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error
	return rows, err
}

func (r *GormSessionRepository) ListRestorable(ctx context.Context) ([]*domain.Session, error) {
	var rows []*domain.Session
	err := r.db.WithContext(ctx).
		Where("status NOT IN ?", []domain.SessionStatus{domain.StatusInactive, domain.StatusPausedUser}).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *GormSessionRepository) UpdateStatus(ctx context.Context, id string, status domain.SessionStatus) error {
	return r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *GormSessionRepository) UpdateUserInfo(ctx context.Context, id string, info *domain.UserInfo) error {
	return r.db.WithContext(ctx).Model(&domain.Session{ID: id}).
		Where("id = ?", id).
		Select("user_info").
		Updates(&domain.Session{UserInfo: info}).Error
}

func (r *GormSessionRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Session{}).Error
}
