package adminapi

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/store"
	"github.com/talkincode/wamux/internal/webserver"
)

func registerSettingsRoutes() {
	webserver.ApiGET("/sessions/:id/settings", getSettings)
	webserver.ApiPUT("/sessions/:id/settings", updateSettings)
}

type settingsView struct {
	Mode           domain.Mode             `json:"mode"`
	Prefix         []string                `json:"prefix"`
	AntideleteMode store.AntideleteMode    `json:"antidelete_mode"`
	Activity       domain.ActivitySettings `json:"activity"`
}

func loadSettings(ctx context.Context, repo store.SettingsRepository, sid string) (*settingsView, error) {
	var (
		v   settingsView
		err error
	)
	if v.Mode, err = repo.Mode(ctx, sid); err != nil {
		return nil, err
	}
	if v.Prefix, err = repo.Prefix(ctx, sid); err != nil {
		return nil, err
	}
	if v.AntideleteMode, err = repo.AntideleteMode(ctx, sid); err != nil {
		return nil, err
	}
	if v.Activity, err = repo.Activity(ctx, sid); err != nil {
		return nil, err
	}
	return &v, nil
}

func getSettings(c echo.Context) error {
	sid, err := sessionID(c)
	if err != nil {
		return fail(c, err)
	}
	v, err := loadSettings(c.Request().Context(), services(c).Settings, sid)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, v)
}

// parseSettingsUpdate validates the whole body before anything is written.
func parseSettingsUpdate(body map[string]interface{}) (store.SettingsChange, error) {
	var u store.SettingsChange
	if len(body) == 0 {
		return u, domain.ErrInvalidParameters
	}
	u.Activity = make(map[string]bool)
	for key, raw := range body {
		switch key {
		case "mode":
			m := domain.Mode(cast.ToString(raw))
			if m != domain.ModePrivate && m != domain.ModePublic {
				return u, domain.ErrInvalidParameters.With(errors.Errorf("mode %q", m))
			}
			u.Mode = m
		case "antidelete_mode":
			m := store.AntideleteMode(cast.ToString(raw))
			if !m.Valid() {
				return u, domain.ErrInvalidParameters.With(errors.Errorf("antidelete_mode %q", m))
			}
			u.AntideleteMode = m
		default:
			if _, known := (domain.ActivitySettings{}).Get(key); !known {
				return u, domain.ErrInvalidParameters.With(errors.Errorf("unknown setting %q", key))
			}
			v, err := cast.ToBoolE(raw)
			if err != nil {
				return u, domain.ErrInvalidParameters.With(err)
			}
			u.Activity[key] = v
		}
	}
	return u, nil
}

func updateSettings(c echo.Context) error {
	sid, err := sessionID(c)
	if err != nil {
		return fail(c, err)
	}
	body := map[string]interface{}{}
	if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
		return fail(c, domain.ErrInvalidParameters.With(err))
	}
	u, err := parseSettingsUpdate(body)
	if err != nil {
		return fail(c, err)
	}

	ctx := c.Request().Context()
	repo := services(c).Settings
	if err := repo.Apply(ctx, sid, u); err != nil {
		return fail(c, err)
	}
	v, err := loadSettings(ctx, repo, sid)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, v)
}
