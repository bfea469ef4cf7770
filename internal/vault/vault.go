// Package vault stores the protocol layer's credential material per tenant.
package vault

import (
	"context"
	"strings"

	"github.com/talkincode/wamux/internal/store"
	"go.uber.org/zap"
)

const (
	lidMappingPrefix  = "lid-mapping-"
	lidMappingReverse = "_reverse"
)

// MappingSink receives identity mappings discovered in credential writes.
type MappingSink interface {
	AddOrUpdate(ctx context.Context, sessionID, pn, lid string) error
}

// Vault reads and writes opaque credential values. Every operation holds the
// tenant lock for that one call only.
type Vault struct {
	repo     store.AuthRepository
	locks    Locker
	mappings MappingSink
}

func New(repo store.AuthRepository, locks Locker, mappings MappingSink) *Vault {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	return &Vault{repo: repo, locks: locks, mappings: mappings}
}

// Read returns ok=false when nothing is stored under name.
func (v *Vault) Read(ctx context.Context, sessionID, name string) (string, bool, error) {
	unlock := v.locks.Lock(sessionID)
	defer unlock()
	return v.repo.Read(ctx, sessionID, name)
}

func (v *Vault) Write(ctx context.Context, sessionID, name, value string) error {
	unlock := v.locks.Lock(sessionID)
	err := v.repo.Write(ctx, sessionID, name, value)
	unlock()
	if err != nil {
		return err
	}
	if pn, lid, ok := parseMapping(name, value); ok && v.mappings != nil {
		if err := v.mappings.AddOrUpdate(ctx, sessionID, pn, lid); err != nil {
			zap.L().Warn("store lid mapping failed",
				zap.String("namespace", "vault"),
				zap.String("session", sessionID),
				zap.Error(err))
		}
	}
	return nil
}

func (v *Vault) Delete(ctx context.Context, sessionID, name string) error {
	unlock := v.locks.Lock(sessionID)
	defer unlock()
	return v.repo.Delete(ctx, sessionID, name)
}

// parseMapping recognises lid-mapping-<pn> (value is the lid) and
// lid-mapping-<lid>_reverse (value is the pn).
func parseMapping(name, value string) (pn, lid string, ok bool) {
	key, found := strings.CutPrefix(name, lidMappingPrefix)
	if !found || key == "" {
		return "", "", false
	}
	value = strings.Trim(strings.TrimSpace(value), `"`)
	if value == "" {
		return "", "", false
	}
	if base, rev := strings.CutSuffix(key, lidMappingReverse); rev {
		if base == "" {
			return "", "", false
		}
		return value, base, true
	}
	return key, value, true
}
