package app

import (
	"fmt"
	"log"
	"path"
	"time"

	"github.com/talkincode/wamux/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DBTypeSqlite   = "sqlite"
	DBTypePostgres = "postgres"
)

// dialector picks the gorm driver for cfg. sqlite lives under workdir/data.
func dialector(cfg config.DBConfig, workdir string) (gorm.Dialector, error) {
	switch cfg.Type {
	case DBTypeSqlite, "":
		name := cfg.Name
		if name == "" {
			name = "wamux"
		}
		file := path.Join(workdir, "data", name+".db")
		return sqlite.Open(fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", file)), nil
	case DBTypePostgres:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Passwd, cfg.Name)
		return postgres.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
}

func openDatabase(cfg config.DBConfig, workdir string) (*gorm.DB, error) {
	dial, err := dialector(cfg, workdir)
	if err != nil {
		return nil, err
	}
	lvl := logger.Silent
	if cfg.Debug {
		lvl = logger.Info
	}
	db, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.New(log.New(log.Writer(), "", log.LstdFlags), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  lvl,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		}),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConn)
	}
	if cfg.IdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.IdleConn)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func getDatabase(cfg config.DBConfig, workdir string) *gorm.DB {
	db, err := openDatabase(cfg, workdir)
	if err != nil {
		panic(fmt.Errorf("open %s database: %w", cfg.Type, err))
	}
	return db
}
