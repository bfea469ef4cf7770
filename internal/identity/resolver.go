// Package identity maps phone-number identities to linked-device ids per tenant.
package identity

import (
	"context"
	"strings"

	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/protocol"
	"github.com/talkincode/wamux/internal/store"
)

type Resolver struct {
	contacts store.ContactRepository
}

func NewResolver(contacts store.ContactRepository) *Resolver {
	return &Resolver{contacts: contacts}
}

// AddOrUpdate stores pn -> lid, replacing any previous lid for pn. Both
// values may be bare or fully qualified.
func (r *Resolver) AddOrUpdate(ctx context.Context, sessionID, pn, lid string) error {
	pn, lid = protocol.UserOf(pn), protocol.UserOf(lid)
	if pn == "" || lid == "" {
		return nil
	}
	return r.contacts.Upsert(ctx, sessionID, domain.Contact{PN: pn, LID: lid})
}

// SyncParticipants records the mapping carried by every participant that
// exposes both forms.
func (r *Resolver) SyncParticipants(ctx context.Context, sessionID string, participants []domain.Participant) error {
	for _, p := range participants {
		pn, lid := p.PhoneNumber, p.LID
		if protocol.IsLID(p.ID) && lid == "" {
			lid = p.ID
		}
		if protocol.IsPN(p.ID) && pn == "" {
			pn = p.ID
		}
		if err := r.AddOrUpdate(ctx, sessionID, pn, lid); err != nil {
			return err
		}
	}
	return nil
}

// AlternateOf returns the other form of id, or "" when unknown.
func (r *Resolver) AlternateOf(ctx context.Context, sessionID, id string) (string, error) {
	user := protocol.UserOf(id)
	if user == "" {
		return "", nil
	}
	c, err := r.contacts.Lookup(ctx, sessionID, user)
	if err != nil || c == nil {
		return "", err
	}
	if c.PN == user {
		return protocol.LID(c.LID), nil
	}
	return protocol.PN(c.PN), nil
}

// Both returns the pn and lid forms of id, leaving unknown forms empty.
func (r *Resolver) Both(ctx context.Context, sessionID, id string) (pn, lid string, err error) {
	id = protocol.Normalize(id)
	alt, err := r.AlternateOf(ctx, sessionID, id)
	if err != nil {
		return "", "", err
	}
	switch {
	case protocol.IsLID(id):
		return alt, id, nil
	case protocol.IsPN(id):
		return id, alt, nil
	}
	return "", "", nil
}

// Resolve turns a possibly partial token into a fully qualified identity,
// or "" when nothing matches.
func (r *Resolver) Resolve(ctx context.Context, sessionID, raw string) (string, error) {
	base, server := protocol.SplitJID(strings.TrimLeft(strings.TrimSpace(raw), "@+"))
	if base == "" {
		return "", nil
	}
	switch server {
	case protocol.PNServer:
		return protocol.PN(base), nil
	case protocol.LIDServer:
		return protocol.LID(base), nil
	}

	c, err := r.contacts.Lookup(ctx, sessionID, base)
	if err != nil {
		return "", err
	}
	if c != nil {
		if c.PN == base {
			return protocol.PN(c.PN), nil
		}
		return protocol.LID(c.LID), nil
	}

	if c, err = r.contacts.LookupPrefix(ctx, sessionID, "pn", base); err != nil {
		return "", err
	} else if c != nil {
		return protocol.PN(c.PN), nil
	}
	if c, err = r.contacts.LookupPrefix(ctx, sessionID, "lid", base); err != nil {
		return "", err
	} else if c != nil {
		return protocol.LID(c.LID), nil
	}
	return "", nil
}
