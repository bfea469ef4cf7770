package store

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"
	"github.com/talkincode/wamux/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository persists raw messages per tenant. Rows are ordered by a
// snowflake sequence so listing newest-first works the same on every backend.
type MessageRepository interface {
	Save(ctx context.Context, sessionID, id, payload string) error
	Get(ctx context.Context, sessionID, id string) (*domain.StoredMessage, error)
	List(ctx context.Context, sessionID string, limit, offset int) ([]domain.StoredMessage, error)
	Count(ctx context.Context, sessionID string) (int64, error)
}

type GormMessageRepository struct {
	tables *Tables
	node   *snowflake.Node
}

func NewGormMessageRepository(tables *Tables, nodeID int64) (*GormMessageRepository, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, errors.Wrap(err, "snowflake node")
	}
	return &GormMessageRepository{tables: tables, node: node}, nil
}

func (r *GormMessageRepository) Save(ctx context.Context, sessionID, id, payload string) error {
	if id == "" {
		return domain.ErrInvalidParameters
	}
	table, err := r.tables.For(ctx, sessionID, KindMessages)
	if err != nil {
		return err
	}
	row := domain.StoredMessage{ID: id, Seq: r.node.Generate().Int64(), Payload: payload}
	return r.tables.DB().WithContext(ctx).Table(table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"msg"}),
		}).
		Create(&row).Error
}

func (r *GormMessageRepository) Get(ctx context.Context, sessionID, id string) (*domain.StoredMessage, error) {
	table, err := r.tables.For(ctx, sessionID, KindMessages)
	if err != nil {
		return nil, err
	}
	var row domain.StoredMessage
	err = r.tables.DB().WithContext(ctx).Table(table).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *GormMessageRepository) List(ctx context.Context, sessionID string, limit, offset int) ([]domain.StoredMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	table, err := r.tables.For(ctx, sessionID, KindMessages)
	if err != nil {
		return nil, err
	}
	var rows []domain.StoredMessage
	err = r.tables.DB().WithContext(ctx).Table(table).
		Order("seq DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	return rows, err
}

func (r *GormMessageRepository) Count(ctx context.Context, sessionID string) (int64, error) {
	table, err := r.tables.For(ctx, sessionID, KindMessages)
	if err != nil {
		return 0, err
	}
	var count int64
	err = r.tables.DB().WithContext(ctx).Table(table).Count(&count).Error
	return count, err
}
