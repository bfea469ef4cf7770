package adminapi

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/webserver"
)

func registerSessionRoutes() {
	webserver.ApiPOST("/sessions", createSession)
	webserver.ApiGET("/sessions", listSessions)
	webserver.ApiPOST("/sessions/restore", restoreSessions)
	webserver.ApiGET("/sessions/:id", getSession)
	webserver.ApiDELETE("/sessions/:id", deleteSession)
	webserver.ApiPOST("/sessions/:id/pause", pauseSession)
	webserver.ApiPOST("/sessions/:id/resume", resumeSession)
	webserver.ApiGET("/sessions/:id/messages", listMessages)
}

type createPayload struct {
	PhoneNumber string `json:"phone_number"`
}

func createSession(c echo.Context) error {
	var payload createPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, domain.ErrInvalidParameters.With(err))
	}
	if strings.TrimSpace(payload.PhoneNumber) == "" {
		return fail(c, domain.ErrInvalidParameters)
	}
	created, err := services(c).Sessions.Create(c.Request().Context(), payload.PhoneNumber)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, created)
}

func listSessions(c echo.Context) error {
	svc := services(c).Sessions
	ctx := c.Request().Context()
	if cast.ToBool(c.QueryParam("extended")) {
		infos, err := svc.ListExtended(ctx)
		if err != nil {
			return fail(c, err)
		}
		return ok(c, infos)
	}
	sessions, err := svc.List(ctx)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, sessions)
}

func getSession(c echo.Context) error {
	s, err := services(c).Sessions.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, s)
}

func deleteSession(c echo.Context) error {
	if err := services(c).Sessions.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return ok(c, map[string]interface{}{"deleted": c.Param("id")})
}

func pauseSession(c echo.Context) error {
	if err := services(c).Sessions.Pause(c.Request().Context(), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return getSession(c)
}

func resumeSession(c echo.Context) error {
	if err := services(c).Sessions.Resume(c.Request().Context(), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return getSession(c)
}

func restoreSessions(c echo.Context) error {
	report, err := services(c).Sessions.RestoreAll(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return ok(c, report)
}

type messageView struct {
	ID      string              `json:"id"`
	Seq     int64               `json:"seq"`
	Message jsoniter.RawMessage `json:"message"`
}

func listMessages(c echo.Context) error {
	sid, err := sessionID(c)
	if err != nil {
		return fail(c, err)
	}
	page, pageSize := parsePagination(c)
	msgs := services(c).Messages
	ctx := c.Request().Context()

	total, err := msgs.Count(ctx, sid)
	if err != nil {
		return fail(c, err)
	}
	rows, err := msgs.List(ctx, sid, pageSize, (page-1)*pageSize)
	if err != nil {
		return fail(c, err)
	}
	items := make([]messageView, 0, len(rows))
	for _, r := range rows {
		v := messageView{ID: r.ID, Seq: r.Seq, Message: jsoniter.RawMessage(r.Payload)}
		if !jsoniter.Valid([]byte(r.Payload)) {
			v.Message, _ = jsoniter.Marshal(r.Payload)
		}
		items = append(items, v)
	}
	return paged(c, items, total, page, pageSize)
}
