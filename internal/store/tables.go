package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/phone"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Kind is a tenant-scoped table suffix. Only the values below may be
// interpolated into DDL.
type Kind string

const (
	KindAuth             Kind = "auth"
	KindMessages         Kind = "messages"
	KindContacts         Kind = "contacts"
	KindGroups           Kind = "groups"
	KindSudo             Kind = "sudo"
	KindBan              Kind = "ban"
	KindMode             Kind = "mode"
	KindPrefix           Kind = "prefix"
	KindAntidelete       Kind = "antidelete"
	KindAlive            Kind = "alive"
	KindMention          Kind = "mention"
	KindFilter           Kind = "filter"
	KindAfk              Kind = "afk"
	KindGroupEvent       Kind = "group_event"
	KindSticker          Kind = "sticker"
	KindBgm              Kind = "bgm"
	KindActivitySettings Kind = "activity_settings"
	KindAntilink         Kind = "antilink"
)

var schemas = map[Kind]string{
	KindAuth:       "name TEXT PRIMARY KEY, data TEXT",
	KindMessages:   "id TEXT PRIMARY KEY, seq BIGINT NOT NULL DEFAULT 0, msg TEXT",
	KindContacts:   "pn TEXT PRIMARY KEY, lid TEXT",
	KindGroups:     "id TEXT PRIMARY KEY, data TEXT",
	KindSudo:       "pn TEXT PRIMARY KEY, lid TEXT",
	KindBan:        "pn TEXT PRIMARY KEY, lid TEXT",
	KindMode:       "id INTEGER PRIMARY KEY, mode TEXT",
	KindPrefix:     "id INTEGER PRIMARY KEY, prefix TEXT",
	KindAntidelete: "id INTEGER PRIMARY KEY, active INTEGER NOT NULL DEFAULT 0, mode TEXT",
	KindAlive:      "id INTEGER PRIMARY KEY, alive_message TEXT",
	KindMention:    "id INTEGER PRIMARY KEY, message TEXT",
	KindFilter:     "keyword TEXT PRIMARY KEY, reply TEXT, status INTEGER NOT NULL DEFAULT 1",
	KindAfk:        "id INTEGER PRIMARY KEY, status INTEGER NOT NULL DEFAULT 0, message TEXT, since BIGINT",
	KindGroupEvent: "id INTEGER PRIMARY KEY, status INTEGER NOT NULL DEFAULT 0",
	KindSticker:    "name TEXT PRIMARY KEY, sha256 TEXT",
	KindBgm:        "keyword TEXT PRIMARY KEY, audio TEXT",
	KindActivitySettings: "id INTEGER PRIMARY KEY, " +
		"auto_read_messages INTEGER NOT NULL DEFAULT 0, " +
		"auto_recover_deleted_messages INTEGER NOT NULL DEFAULT 0, " +
		"auto_antispam INTEGER NOT NULL DEFAULT 0, " +
		"auto_typing INTEGER NOT NULL DEFAULT 0, " +
		"auto_recording INTEGER NOT NULL DEFAULT 0, " +
		"auto_reject_calls INTEGER NOT NULL DEFAULT 0, " +
		"auto_always_online INTEGER NOT NULL DEFAULT 0",
	KindAntilink: "id INTEGER PRIMARY KEY, active INTEGER NOT NULL DEFAULT 0, mode INTEGER NOT NULL DEFAULT 0",
}

// AllKinds lists every tenant table kind in provisioning order.
var AllKinds = []Kind{
	KindAuth, KindMessages, KindContacts, KindGroups, KindSudo, KindBan,
	KindMode, KindPrefix, KindAntidelete, KindAlive, KindMention, KindFilter,
	KindAfk, KindGroupEvent, KindSticker, KindBgm, KindActivitySettings, KindAntilink,
}

func (k Kind) Valid() bool {
	_, ok := schemas[k]
	return ok
}

// TableName builds user_<digits>_<kind>, rejecting anything outside the whitelist.
func TableName(digits string, kind Kind) (string, error) {
	if !phone.IsDigits(digits) {
		return "", domain.ErrInvalidSessionID
	}
	if !kind.Valid() {
		return "", errors.Errorf("unknown table kind %q", kind)
	}
	return fmt.Sprintf("user_%s_%s", digits, kind), nil
}

// ParseTableName is the inverse of TableName.
func ParseTableName(name string) (string, Kind, bool) {
	rest, ok := strings.CutPrefix(name, "user_")
	if !ok {
		return "", "", false
	}
	digits, suffix, ok := strings.Cut(rest, "_")
	if !ok || !phone.IsDigits(digits) || !Kind(suffix).Valid() {
		return "", "", false
	}
	return digits, Kind(suffix), true
}

// Tables memoizes per-tenant DDL. A tenant whose tables were dropped stays
// dropped until provisioned again, so late writes from in-flight work fail
// instead of recreating the tables.
type Tables struct {
	db      *gorm.DB
	mu      sync.Mutex
	created map[string]struct{}
	dropped map[string]struct{}
}

func NewTables(db *gorm.DB) *Tables {
	return &Tables{
		db:      db,
		created: make(map[string]struct{}),
		dropped: make(map[string]struct{}),
	}
}

func (t *Tables) DB() *gorm.DB {
	return t.db
}

// For resolves the table of kind for a tenant id, creating it if needed.
func (t *Tables) For(ctx context.Context, sessionID string, kind Kind) (string, error) {
	digits, ok := phone.FromSessionID(sessionID)
	if !ok {
		return "", domain.ErrInvalidSessionID
	}
	return t.Ensure(ctx, digits, kind)
}

// Ensure creates the table once per process.
func (t *Tables) Ensure(ctx context.Context, digits string, kind Kind) (string, error) {
	name, err := TableName(digits, kind)
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, gone := t.dropped[digits]; gone {
		return "", domain.ErrSessionNotFound
	}
	if _, ok := t.created[name]; ok {
		return name, nil
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (%s)`, name, schemas[kind])
	if err := t.db.WithContext(ctx).Exec(ddl).Error; err != nil {
		return "", errors.Wrapf(err, "create table %s", name)
	}
	t.created[name] = struct{}{}
	return name, nil
}

// Provision creates every tenant table and clears a previous drop mark.
func (t *Tables) Provision(ctx context.Context, digits string) error {
	t.mu.Lock()
	delete(t.dropped, digits)
	t.mu.Unlock()
	for _, kind := range AllKinds {
		if _, err := t.Ensure(ctx, digits, kind); err != nil {
			return err
		}
	}
	return nil
}

// Drop removes every tenant table. It is safe to call repeatedly.
func (t *Tables) Drop(ctx context.Context, digits string) error {
	if !phone.IsDigits(digits) {
		return domain.ErrInvalidSessionID
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropped[digits] = struct{}{}
	var firstErr error
	for _, kind := range AllKinds {
		name, _ := TableName(digits, kind)
		delete(t.created, name)
		if err := t.db.WithContext(ctx).Exec(fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, name)).Error; err != nil {
			zap.L().Error("drop tenant table failed",
				zap.String("namespace", "store"),
				zap.String("table", name),
				zap.Error(err))
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "drop table %s", name)
			}
		}
	}
	return firstErr
}

// Orphans returns the phones owning tenant tables that are not in keep.
func (t *Tables) Orphans(ctx context.Context, keep map[string]bool) ([]string, error) {
	names, err := t.db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		return nil, errors.Wrap(err, "list tables")
	}
	seen := make(map[string]bool)
	var out []string
	for _, name := range names {
		digits, _, ok := ParseTableName(name)
		if !ok || keep[digits] || seen[digits] {
			continue
		}
		seen[digits] = true
		out = append(out, digits)
	}
	return out, nil
}
