// Package whatsapp implements the protocol client over whatsmeow. Every
// tenant gets its own whatsmeow client; device keys live in whatsmeow's
// sqlstore inside the application database.
package whatsapp

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/protocol"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
)

// DeviceJIDKey is the vault entry that links a tenant to its sqlstore device.
const DeviceJIDKey = "device-jid"

// Credentials is the tenant credential vault.
type Credentials interface {
	Read(ctx context.Context, sessionID, name string) (string, bool, error)
	Write(ctx context.Context, sessionID, name, value string) error
}

// MessageSource serves stored messages for peer resend requests.
type MessageSource interface {
	Get(ctx context.Context, sessionID, id string) (*domain.StoredMessage, error)
}

type Options struct {
	RetryMax int
	RetryTTL time.Duration
	// OSName is shown on the phone's linked devices list
	OSName string
}

// Factory opens whatsmeow clients for tenants.
type Factory struct {
	container *sqlstore.Container
	creds     Credentials
	messages  MessageSource
	opts      Options
}

// Dialect maps the configured database type onto a sqlstore dialect.
func Dialect(dbType string) string {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "postgres", "postgresql":
		return "postgres"
	default:
		return "sqlite3"
	}
}

// NewFactory wraps the application database so whatsmeow's tables live next
// to ours, and upgrades its schema.
func NewFactory(db *sql.DB, dialect string, creds Credentials, messages MessageSource, opts Options) (*Factory, error) {
	if dialect == "sqlite3" {
		// sqlstore migrations need foreign keys
		if _, err := db.ExecContext(context.Background(), "PRAGMA foreign_keys = ON;"); err != nil {
			zap.L().Warn("enable sqlite foreign_keys failed",
				zap.String("namespace", "whatsapp"),
				zap.Error(err))
		}
	}
	container := sqlstore.NewWithDB(db, dialect, Logger("Database"))
	if err := container.Upgrade(); err != nil {
		return nil, errors.Wrap(err, "sqlstore upgrade")
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 3
	}
	if opts.RetryTTL <= 0 {
		opts.RetryTTL = 10 * time.Minute
	}
	if opts.OSName != "" {
		store.DeviceProps.Os = &opts.OSName
	}
	zap.L().Info("whatsapp factory initialized",
		zap.String("namespace", "whatsapp"),
		zap.String("dialect", dialect))
	return &Factory{container: container, creds: creds, messages: messages, opts: opts}, nil
}

// Open loads the tenant's device, or a fresh one before pairing, and wires
// its events to sink. The client is not connected yet.
func (f *Factory) Open(ctx context.Context, sessionID string, sink protocol.Sink) (protocol.Client, error) {
	device, err := f.device(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cli := whatsmeow.NewClient(device, Logger("Client/"+sessionID))
	// reconnects are driven by the session registry
	cli.EnableAutoReconnect = false
	c := &Client{
		sessionID: sessionID,
		cli:       cli,
		sink:      sink,
		messages:  f.messages,
		retries:   protocol.NewRetryCache(f.opts.RetryMax, f.opts.RetryTTL),
	}
	cli.GetMessageForRetry = c.messageForRetry
	c.handlerID = cli.AddEventHandler(c.handle)
	return c, nil
}

func (f *Factory) device(ctx context.Context, sessionID string) (*store.Device, error) {
	raw, ok, err := f.creds.Read(ctx, sessionID, DeviceJIDKey)
	if err != nil {
		return nil, err
	}
	if ok && raw != "" {
		jid, err := waTypes.ParseJID(raw)
		if err != nil {
			zap.L().Warn("stored device jid is invalid",
				zap.String("namespace", "whatsapp"),
				zap.String("session", sessionID),
				zap.Error(err))
		} else {
			device, err := f.container.GetDevice(jid)
			if err != nil {
				return nil, errors.Wrap(err, "load device")
			}
			if device != nil {
				return device, nil
			}
			zap.L().Warn("stored device missing from sqlstore, pairing again",
				zap.String("namespace", "whatsapp"),
				zap.String("session", sessionID),
				zap.String("jid", raw))
		}
	}
	return f.container.NewDevice(), nil
}

// Purge deletes the tenant's sqlstore device. Logout does the same for a
// live client; this covers paused, unloaded and half-created tenants.
func (f *Factory) Purge(ctx context.Context, sessionID string) error {
	raw, ok, err := f.creds.Read(ctx, sessionID, DeviceJIDKey)
	if err != nil || !ok || raw == "" {
		return err
	}
	jid, err := waTypes.ParseJID(raw)
	if err != nil {
		return errors.Wrapf(err, "parse device jid %q", raw)
	}
	device, err := f.container.GetDevice(jid)
	if err != nil {
		return errors.Wrap(err, "load device")
	}
	if device == nil {
		return nil
	}
	if err := device.Delete(); err != nil {
		return errors.Wrap(err, "delete device")
	}
	zap.L().Info("device keys purged",
		zap.String("namespace", "whatsapp"),
		zap.String("session", sessionID),
		zap.String("jid", raw))
	return nil
}
