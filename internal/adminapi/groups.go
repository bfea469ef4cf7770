package adminapi

import (
	"github.com/labstack/echo/v4"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/groupaction"
	"github.com/talkincode/wamux/internal/webserver"
)

func registerGroupRoutes() {
	webserver.ApiGET("/sessions/:id/groups", listGroups)
	webserver.ApiGET("/sessions/:id/groups/:gid", getGroup)
	webserver.ApiPOST("/sessions/:id/groups/:gid/actions/:action", runGroupAction)
}

func listGroups(c echo.Context) error {
	sid, err := sessionID(c)
	if err != nil {
		return fail(c, err)
	}
	groups, err := services(c).Groups.ListSummaries(c.Request().Context(), sid)
	if err != nil {
		return fail(c, err)
	}
	if groups == nil {
		groups = []domain.GroupSummary{}
	}
	return ok(c, groups)
}

func getGroup(c echo.Context) error {
	sid, err := sessionID(c)
	if err != nil {
		return fail(c, err)
	}
	md, err := services(c).Groups.Get(c.Request().Context(), sid, c.Param("gid"))
	if err != nil {
		return fail(c, err)
	}
	if md == nil {
		return fail(c, domain.ErrGroupNotFound)
	}
	return ok(c, md)
}

func runGroupAction(c echo.Context) error {
	svc := services(c)
	ctx := c.Request().Context()
	sid, err := sessionID(c)
	if err != nil {
		return fail(c, err)
	}

	// path params must not leak into the action parameters
	body := map[string]interface{}{}
	if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
		return fail(c, domain.ErrInvalidParameters.With(err))
	}
	params, err := groupaction.DecodeParams(body)
	if err != nil {
		return fail(c, err)
	}

	client, err := svc.Sessions.Client(ctx, sid)
	if err != nil {
		return fail(c, err)
	}
	res, err := svc.Actions.Execute(ctx, sid, client, c.Param("gid"), c.Param("action"), params)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, res)
}
