// Package store is the durable store: the shared sessions registry plus the
// per-tenant tables created on demand.
package store

import (
	"gorm.io/gorm"
)

// Store bundles every repository over one database handle.
type Store struct {
	Tables   *Tables
	Sessions *GormSessionRepository
	Auth     *GormAuthRepository
	Contacts *GormContactRepository
	Groups   *GormGroupRepository
	Sudo     *GormIdentityListRepository
	Ban      *GormIdentityListRepository
	Settings *GormSettingsRepository
	Messages *GormMessageRepository
	Filters  *GormFilterRepository
}

// New wires every repository. nodeID seeds the message sequence generator
// and must be unique per process sharing the database.
func New(db *gorm.DB, nodeID int64) (*Store, error) {
	tables := NewTables(db)
	messages, err := NewGormMessageRepository(tables, nodeID)
	if err != nil {
		return nil, err
	}
	return &Store{
		Tables:   tables,
		Sessions: NewGormSessionRepository(db),
		Auth:     NewGormAuthRepository(tables),
		Contacts: NewGormContactRepository(tables),
		Groups:   NewGormGroupRepository(tables),
		Sudo:     NewSudoRepository(tables),
		Ban:      NewBanRepository(tables),
		Settings: NewGormSettingsRepository(tables),
		Messages: messages,
		Filters:  NewGormFilterRepository(tables),
	}, nil
}
