package app

import (
	"context"

	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/phone"
	"github.com/talkincode/wamux/internal/store"
	"go.uber.org/zap"
)

// pruneOrphanTables drops tenant tables whose phone has no sessions row,
// which is what a crash in the middle of a create leaves behind.
func (a *Application) pruneOrphanTables(ctx context.Context) int {
	var rows []domain.Session
	if err := a.gormDB.WithContext(ctx).Select("id", "phone_number").Find(&rows).Error; err != nil {
		zap.L().Error("failed to list sessions", zap.Error(err))
		return 0
	}
	keep := make(map[string]bool, len(rows))
	for _, r := range rows {
		keep[r.PhoneNumber] = true
		if digits, ok := phone.FromSessionID(r.ID); ok {
			keep[digits] = true
		}
	}

	tables := store.NewTables(a.gormDB)
	orphans, err := tables.Orphans(ctx, keep)
	if err != nil {
		zap.L().Error("failed to scan tenant tables", zap.Error(err))
		return 0
	}
	dropped := 0
	for _, digits := range orphans {
		if err := tables.Drop(ctx, digits); err != nil {
			zap.L().Error("failed to drop orphan tenant tables",
				zap.String("phone", digits),
				zap.Error(err))
			continue
		}
		dropped++
		zap.L().Warn("dropped orphan tenant tables", zap.String("phone", digits))
	}
	return dropped
}
