// Package adminapi exposes the session registry over the admin HTTP API.
package adminapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/groupaction"
	"github.com/talkincode/wamux/internal/protocol"
	"github.com/talkincode/wamux/internal/session"
	"github.com/talkincode/wamux/internal/store"
	"go.uber.org/zap"
)

const ServicesKey = "adminapi.services"

type SessionService interface {
	Create(ctx context.Context, rawPhone string) (*session.Created, error)
	Delete(ctx context.Context, idOrPhone string) error
	Pause(ctx context.Context, idOrPhone string) error
	Resume(ctx context.Context, idOrPhone string) error
	RestoreAll(ctx context.Context) (*session.RestoreReport, error)
	Get(ctx context.Context, idOrPhone string) (*domain.Session, error)
	List(ctx context.Context) ([]*domain.Session, error)
	ListExtended(ctx context.Context) ([]*session.Info, error)
	Client(ctx context.Context, idOrPhone string) (protocol.Client, error)
}

type MessageReader interface {
	List(ctx context.Context, sessionID string, limit, offset int) ([]domain.StoredMessage, error)
	Count(ctx context.Context, sessionID string) (int64, error)
}

type GroupReader interface {
	Get(ctx context.Context, sessionID, groupID string) (*domain.GroupMetadata, error)
	ListSummaries(ctx context.Context, sessionID string) ([]domain.GroupSummary, error)
}

type GroupActions interface {
	Execute(ctx context.Context, sessionID string, client protocol.Client, groupID, action string, params groupaction.Params) (*groupaction.Result, error)
}

// Services are the backends the handlers call. They reach handlers through
// the request context, see Values.
type Services struct {
	Sessions SessionService
	Messages MessageReader
	Groups   GroupReader
	Settings store.SettingsRepository
	Actions  GroupActions
}

func (s *Services) Values() map[string]interface{} {
	return map[string]interface{}{ServicesKey: s}
}

var initOnce sync.Once

// Init registers every admin route with the webserver.
func Init() {
	initOnce.Do(func() {
		registerSessionRoutes()
		registerGroupRoutes()
		registerSettingsRoutes()
	})
}

func services(c echo.Context) *Services {
	return c.Get(ServicesKey).(*Services)
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

// fail answers with the taxonomy code of err only. Unclassified errors are
// logged and reported as internal_error.
func fail(c echo.Context, err error) error {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal || kind == domain.KindUpstream {
		zap.L().Warn("admin api request failed",
			zap.String("namespace", "adminapi"),
			zap.String("path", c.Path()),
			zap.Error(err))
	}
	return c.JSON(statusOf(kind), envelope{Error: domain.CodeOf(err)})
}

func statusOf(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindPermissionDenied:
		return http.StatusForbidden
	case domain.KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

type pageData struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

func parsePagination(c echo.Context) (page, pageSize int) {
	page = cast.ToInt(c.QueryParam("page"))
	pageSize = cast.ToInt(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}
	return page, pageSize
}

func paged(c echo.Context, items interface{}, total int64, page, pageSize int) error {
	return ok(c, pageData{Items: items, Total: total, Page: page, PageSize: pageSize})
}

// sessionID resolves the :id path parameter, which may also be a phone
// number, to the canonical session id.
func sessionID(c echo.Context) (string, error) {
	s, err := services(c).Sessions.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return "", err
	}
	return s.ID, nil
}
