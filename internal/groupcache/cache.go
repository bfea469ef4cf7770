// Package groupcache keeps the last known metadata of every group a tenant
// belongs to, merging partial updates onto the stored document.
package groupcache

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/protocol"
	"github.com/talkincode/wamux/internal/store"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Patch is a partial metadata document keyed by JSON field name. It must carry "id".
type Patch map[string]interface{}

// ParticipantSink learns identity mappings from participant lists.
type ParticipantSink interface {
	SyncParticipants(ctx context.Context, sessionID string, participants []domain.Participant) error
}

type Cache struct {
	repo store.GroupRepository
	sink ParticipantSink
}

func New(repo store.GroupRepository, sink ParticipantSink) *Cache {
	return &Cache{repo: repo, sink: sink}
}

// Get returns nil when the group is not cached.
func (c *Cache) Get(ctx context.Context, sessionID, groupID string) (*domain.GroupMetadata, error) {
	row, err := c.repo.Get(ctx, sessionID, groupID)
	if err != nil || row == nil {
		return nil, err
	}
	var md domain.GroupMetadata
	if err := json.UnmarshalFromString(row.Data, &md); err != nil {
		return nil, errors.Wrapf(err, "decode group %s", groupID)
	}
	if md.ID == "" {
		md.ID = row.ID
	}
	return &md, nil
}

// Upsert deep-merges patch onto the stored document. Fields missing from
// patch are preserved; participants are replaced only when present.
func (c *Cache) Upsert(ctx context.Context, sessionID string, patch Patch) error {
	id, _ := patch["id"].(string)
	if id == "" {
		return domain.ErrInvalidParameters
	}
	row, err := c.repo.Get(ctx, sessionID, id)
	if err != nil {
		return err
	}
	doc := map[string]interface{}{}
	if row != nil && row.Data != "" {
		if err := json.UnmarshalFromString(row.Data, &doc); err != nil {
			zap.L().Warn("discarding undecodable group record",
				zap.String("namespace", "groupcache"),
				zap.String("session", sessionID),
				zap.String("group", id),
				zap.Error(err))
			doc = map[string]interface{}{}
		}
	}
	merge(doc, patch)

	data, err := json.MarshalToString(doc)
	if err != nil {
		return errors.Wrap(err, "encode group")
	}
	if err := c.repo.Put(ctx, sessionID, store.GroupRow{ID: id, Data: data}); err != nil {
		return err
	}

	if raw, ok := patch["participants"]; ok && c.sink != nil {
		participants, err := decodeParticipants(raw)
		if err == nil {
			err = c.sink.SyncParticipants(ctx, sessionID, participants)
		}
		if err != nil {
			zap.L().Warn("participant sync failed",
				zap.String("namespace", "groupcache"),
				zap.String("session", sessionID),
				zap.String("group", id),
				zap.Error(err))
		}
	}
	return nil
}

// Put stores full metadata through the same merge path.
func (c *Cache) Put(ctx context.Context, sessionID string, md *domain.GroupMetadata) error {
	patch, err := ToPatch(md)
	if err != nil {
		return err
	}
	return c.Upsert(ctx, sessionID, patch)
}

func (c *Cache) Delete(ctx context.Context, sessionID, groupID string) error {
	return c.repo.Delete(ctx, sessionID, groupID)
}

// ApplyParticipants edits the cached participant list in place. Unknown
// groups are ignored.
func (c *Cache) ApplyParticipants(ctx context.Context, sessionID, groupID string, action domain.ParticipantAction, ids []string) error {
	md, err := c.Get(ctx, sessionID, groupID)
	if err != nil || md == nil {
		return err
	}
	targets := make(map[string]bool, len(ids))
	for _, id := range ids {
		targets[protocol.Normalize(id)] = true
	}
	match := func(p domain.Participant) bool {
		return targets[protocol.Normalize(p.ID)] || targets[protocol.Normalize(p.PhoneNumber)] || targets[protocol.Normalize(p.LID)]
	}

	var out []domain.Participant
	switch action {
	case domain.ParticipantsAdd:
		out = md.Participants
		for _, id := range ids {
			exists := false
			for _, p := range md.Participants {
				if protocol.SameUser(p.ID, id) || protocol.SameUser(p.PhoneNumber, id) || protocol.SameUser(p.LID, id) {
					exists = true
					break
				}
			}
			if !exists {
				out = append(out, domain.Participant{ID: protocol.Normalize(id)})
			}
		}
	case domain.ParticipantsRemove:
		for _, p := range md.Participants {
			if !match(p) {
				out = append(out, p)
			}
		}
	case domain.ParticipantsPromote, domain.ParticipantsDemote:
		for _, p := range md.Participants {
			if match(p) {
				if action == domain.ParticipantsPromote {
					admin := "admin"
					p.Admin = &admin
				} else {
					p.Admin = nil
				}
			}
			out = append(out, p)
		}
	default:
		return domain.ErrInvalidParameters
	}
	if out == nil {
		out = []domain.Participant{}
	}
	return c.Upsert(ctx, sessionID, Patch{"id": groupID, "participants": out, "size": len(out)})
}

// IsAdmin reports whether any of ids is an admin of the cached group.
func (c *Cache) IsAdmin(ctx context.Context, sessionID, groupID string, ids ...string) (bool, error) {
	md, err := c.Get(ctx, sessionID, groupID)
	if err != nil || md == nil {
		return false, err
	}
	for _, p := range md.Participants {
		if !p.IsAdmin() {
			continue
		}
		for _, id := range ids {
			if id == "" {
				continue
			}
			if protocol.SameUser(p.ID, id) || protocol.SameUser(p.PhoneNumber, id) || protocol.SameUser(p.LID, id) {
				return true, nil
			}
		}
	}
	return false, nil
}

// ListSummaries projects every cached group for listings.
func (c *Cache) ListSummaries(ctx context.Context, sessionID string) ([]domain.GroupSummary, error) {
	rows, err := c.repo.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.GroupSummary, 0, len(rows))
	for _, row := range rows {
		var md domain.GroupMetadata
		if err := json.UnmarshalFromString(row.Data, &md); err != nil {
			continue
		}
		subject := md.Subject
		if subject == "" {
			subject = "Unknown Group"
		}
		out = append(out, domain.GroupSummary{
			ID:               row.ID,
			Subject:          subject,
			ParticipantCount: len(md.Participants),
			IsCommunity:      md.IsCommunity,
			LinkedParent:     md.LinkedParent,
		})
	}
	return out, nil
}

// ToPatch converts full metadata into a patch carrying every field.
func ToPatch(md *domain.GroupMetadata) (Patch, error) {
	if md == nil || md.ID == "" {
		return nil, domain.ErrInvalidParameters
	}
	data, err := json.Marshal(md)
	if err != nil {
		return nil, errors.Wrap(err, "encode group")
	}
	patch := Patch{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return nil, errors.Wrap(err, "decode group")
	}
	if md.Participants == nil {
		delete(patch, "participants")
	}
	return patch, nil
}

func merge(dst, src map[string]interface{}) {
	for k, v := range src {
		if sub, ok := v.(map[string]interface{}); ok {
			if cur, ok := dst[k].(map[string]interface{}); ok {
				merge(cur, sub)
				continue
			}
		}
		dst[k] = v
	}
}

func decodeParticipants(raw interface{}) ([]domain.Participant, error) {
	if ps, ok := raw.([]domain.Participant); ok {
		return ps, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var ps []domain.Participant
	err = json.Unmarshal(data, &ps)
	return ps, err
}
