package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/talkincode/wamux/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const settingsRowID = 1

// AntideleteMode selects which chats deleted-message recovery covers.
type AntideleteMode string

const (
	AntideleteAll    AntideleteMode = "all"
	AntideleteGroups AntideleteMode = "groups"
	AntideleteP2P    AntideleteMode = "p2p"
)

// Covers reports whether recovery applies to a chat of the given kind.
func (m AntideleteMode) Covers(isGroup bool) bool {
	switch m {
	case AntideleteGroups:
		return isGroup
	case AntideleteP2P:
		return !isGroup
	}
	return true
}

func (m AntideleteMode) Valid() bool {
	return m == AntideleteAll || m == AntideleteGroups || m == AntideleteP2P
}

// SettingsRepository stores the single-row per-tenant settings tables.
type SettingsRepository interface {
	Mode(ctx context.Context, sessionID string) (domain.Mode, error)
	// SetMode reports false when the mode was already set
	SetMode(ctx context.Context, sessionID string, mode domain.Mode) (bool, error)

	// Prefix returns nil when no prefix is configured
	Prefix(ctx context.Context, sessionID string) ([]string, error)
	SetPrefix(ctx context.Context, sessionID, symbols string) error
	DeletePrefix(ctx context.Context, sessionID string) error

	// Activity creates the default row on first access
	Activity(ctx context.Context, sessionID string) (domain.ActivitySettings, error)
	SetActivity(ctx context.Context, sessionID, column string, enabled bool) error

	AntideleteMode(ctx context.Context, sessionID string) (AntideleteMode, error)
	SetAntideleteMode(ctx context.Context, sessionID string, mode AntideleteMode) error

	// Apply writes every field of change in one transaction, or nothing.
	Apply(ctx context.Context, sessionID string, change SettingsChange) error
}

// SettingsChange is a batch of settings writes. Zero fields are left alone.
type SettingsChange struct {
	Mode           domain.Mode
	AntideleteMode AntideleteMode
	Activity       map[string]bool
}

func (c SettingsChange) validate() error {
	if c.Mode != "" && c.Mode != domain.ModePrivate && c.Mode != domain.ModePublic {
		return domain.ErrInvalidParameters.With(errors.Errorf("mode %q", c.Mode))
	}
	if c.AntideleteMode != "" && !c.AntideleteMode.Valid() {
		return domain.ErrInvalidParameters.With(errors.Errorf("antidelete_mode %q", c.AntideleteMode))
	}
	for column := range c.Activity {
		if _, ok := (domain.ActivitySettings{}).Get(column); !ok {
			return domain.ErrInvalidParameters.With(errors.Errorf("unknown setting %q", column))
		}
	}
	return nil
}

type GormSettingsRepository struct {
	tables *Tables
}

func NewGormSettingsRepository(tables *Tables) *GormSettingsRepository {
	return &GormSettingsRepository{tables: tables}
}

func (r *GormSettingsRepository) row(ctx context.Context, sessionID string, kind Kind) (map[string]interface{}, string, error) {
	table, err := r.tables.For(ctx, sessionID, kind)
	if err != nil {
		return nil, "", err
	}
	row := map[string]interface{}{}
	err = r.tables.DB().WithContext(ctx).Table(table).Where("id = ?", settingsRowID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, table, nil
	}
	if err != nil {
		return nil, table, err
	}
	return row, table, nil
}

func (r *GormSettingsRepository) upsert(ctx context.Context, table string, values map[string]interface{}) error {
	return upsertRow(r.tables.DB().WithContext(ctx), table, values)
}

func upsertRow(db *gorm.DB, table string, values map[string]interface{}) error {
	cols := make([]string, 0, len(values))
	for k := range values {
		cols = append(cols, k)
	}
	values["id"] = settingsRowID
	return db.Table(table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(cols),
		}).
		Create(values).Error
}

func (r *GormSettingsRepository) Mode(ctx context.Context, sessionID string) (domain.Mode, error) {
	row, _, err := r.row(ctx, sessionID, KindMode)
	if err != nil {
		return domain.ModePrivate, err
	}
	if row == nil {
		return domain.ModePrivate, nil
	}
	if domain.Mode(cast.ToString(row["mode"])) == domain.ModePublic {
		return domain.ModePublic, nil
	}
	return domain.ModePrivate, nil
}

func (r *GormSettingsRepository) SetMode(ctx context.Context, sessionID string, mode domain.Mode) (bool, error) {
	if mode != domain.ModePrivate && mode != domain.ModePublic {
		return false, domain.ErrInvalidParameters
	}
	current, err := r.Mode(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if current == mode {
		return false, nil
	}
	table, err := r.tables.For(ctx, sessionID, KindMode)
	if err != nil {
		return false, err
	}
	return true, r.upsert(ctx, table, map[string]interface{}{"mode": string(mode)})
}

func (r *GormSettingsRepository) Prefix(ctx context.Context, sessionID string) ([]string, error) {
	row, _, err := r.row(ctx, sessionID, KindPrefix)
	if err != nil || row == nil {
		return nil, err
	}
	symbols := cast.ToString(row["prefix"])
	if symbols == "" {
		return nil, nil
	}
	out := make([]string, 0, len(symbols))
	for _, ch := range symbols {
		out = append(out, string(ch))
	}
	return out, nil
}

func (r *GormSettingsRepository) SetPrefix(ctx context.Context, sessionID, symbols string) error {
	if symbols == "" {
		return domain.ErrInvalidParameters
	}
	table, err := r.tables.For(ctx, sessionID, KindPrefix)
	if err != nil {
		return err
	}
	return r.upsert(ctx, table, map[string]interface{}{"prefix": symbols})
}

func (r *GormSettingsRepository) DeletePrefix(ctx context.Context, sessionID string) error {
	table, err := r.tables.For(ctx, sessionID, KindPrefix)
	if err != nil {
		return err
	}
	return r.tables.DB().WithContext(ctx).Exec(`DELETE FROM "`+table+`" WHERE id = ?`, settingsRowID).Error
}

func (r *GormSettingsRepository) Activity(ctx context.Context, sessionID string) (domain.ActivitySettings, error) {
	var out domain.ActivitySettings
	row, table, err := r.row(ctx, sessionID, KindActivitySettings)
	if err != nil {
		return out, err
	}
	if row == nil {
		defaults := make(map[string]interface{}, len(domain.ActivityColumns))
		for _, col := range domain.ActivityColumns {
			defaults[col] = 0
		}
		defaults["id"] = settingsRowID
		err = r.tables.DB().WithContext(ctx).Table(table).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(defaults).Error
		return out, err
	}
	for _, col := range domain.ActivityColumns {
		out.Set(col, cast.ToBool(row[col]))
	}
	return out, nil
}

func (r *GormSettingsRepository) SetActivity(ctx context.Context, sessionID, column string, enabled bool) error {
	if _, ok := (domain.ActivitySettings{}).Get(column); !ok {
		return domain.ErrInvalidParameters
	}
	if _, err := r.Activity(ctx, sessionID); err != nil {
		return err
	}
	table, err := r.tables.For(ctx, sessionID, KindActivitySettings)
	if err != nil {
		return err
	}
	return r.tables.DB().WithContext(ctx).Table(table).
		Where("id = ?", settingsRowID).
		Update(column, boolInt(enabled)).Error
}

func (r *GormSettingsRepository) AntideleteMode(ctx context.Context, sessionID string) (AntideleteMode, error) {
	row, _, err := r.row(ctx, sessionID, KindAntidelete)
	if err != nil || row == nil {
		return AntideleteAll, err
	}
	if mode := AntideleteMode(cast.ToString(row["mode"])); mode.Valid() {
		return mode, nil
	}
	return AntideleteAll, nil
}

func (r *GormSettingsRepository) SetAntideleteMode(ctx context.Context, sessionID string, mode AntideleteMode) error {
	if !mode.Valid() {
		return domain.ErrInvalidParameters
	}
	table, err := r.tables.For(ctx, sessionID, KindAntidelete)
	if err != nil {
		return err
	}
	return r.upsert(ctx, table, map[string]interface{}{"mode": string(mode), "active": 1})
}

func (r *GormSettingsRepository) Apply(ctx context.Context, sessionID string, change SettingsChange) error {
	if err := change.validate(); err != nil {
		return err
	}
	// tables and the activity row must exist before the transaction starts
	var modeTable, antideleteTable, activityTable string
	var err error
	if change.Mode != "" {
		if modeTable, err = r.tables.For(ctx, sessionID, KindMode); err != nil {
			return err
		}
	}
	if change.AntideleteMode != "" {
		if antideleteTable, err = r.tables.For(ctx, sessionID, KindAntidelete); err != nil {
			return err
		}
	}
	if len(change.Activity) > 0 {
		if _, err := r.Activity(ctx, sessionID); err != nil {
			return err
		}
		if activityTable, err = r.tables.For(ctx, sessionID, KindActivitySettings); err != nil {
			return err
		}
	}

	return r.tables.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if modeTable != "" {
			if err := upsertRow(tx, modeTable, map[string]interface{}{"mode": string(change.Mode)}); err != nil {
				return err
			}
		}
		if antideleteTable != "" {
			values := map[string]interface{}{"mode": string(change.AntideleteMode), "active": 1}
			if err := upsertRow(tx, antideleteTable, values); err != nil {
				return err
			}
		}
		for _, column := range domain.ActivityColumns {
			v, ok := change.Activity[column]
			if !ok {
				continue
			}
			err := tx.Table(activityTable).Where("id = ?", settingsRowID).Update(column, boolInt(v)).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
