// Package webserver hosts the admin HTTP surface. Route packages register
// handlers with ApiGET and friends before New mounts them under /api/v1.
package webserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo-contrib/echoprometheus"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/talkincode/wamux/config"
	"go.uber.org/zap"
)

const ApiPrefix = "/api/v1"

type route struct {
	method  string
	path    string
	handler echo.HandlerFunc
}

var (
	routesMu sync.Mutex
	routes   []route
)

func addRoute(method, path string, h echo.HandlerFunc) {
	routesMu.Lock()
	defer routesMu.Unlock()
	routes = append(routes, route{method: method, path: path, handler: h})
}

func ApiGET(path string, h echo.HandlerFunc)    { addRoute(http.MethodGet, path, h) }
func ApiPOST(path string, h echo.HandlerFunc)   { addRoute(http.MethodPost, path, h) }
func ApiPUT(path string, h echo.HandlerFunc)    { addRoute(http.MethodPut, path, h) }
func ApiDELETE(path string, h echo.HandlerFunc) { addRoute(http.MethodDelete, path, h) }

// Options are the handlers and values mounted next to the API routes.
type Options struct {
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Registerer receives the HTTP request collectors when set.
	Registerer prometheus.Registerer
	// Events serves the /ws stream when set.
	Events http.Handler
	// Values are stored on every request context under their keys.
	Values map[string]interface{}
}

type Server struct {
	root *echo.Echo
	addr string
}

func New(cfg config.WebConfig, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonSerializer{}
	// requests are logged through zap
	e.Logger.SetLevel(log.OFF)
	e.Use(middleware.Recover())
	e.Use(requestLogger())
	if opts.Registerer != nil {
		e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
			Subsystem:  "wamux_http",
			Registerer: opts.Registerer,
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/metrics" || c.Path() == "/ws"
			},
		}))
	}
	if len(opts.Values) > 0 {
		e.Use(inject(opts.Values))
	}

	var auth []echo.MiddlewareFunc
	if cfg.Secret != "" {
		auth = append(auth, echojwt.WithConfig(echojwt.Config{
			SigningKey:  []byte(cfg.Secret),
			TokenLookup: "header:Authorization:Bearer ,query:token",
			ErrorHandler: func(c echo.Context, err error) error {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"success": false,
					"error":   "unauthorized",
				})
			},
		}))
	}

	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}
	if opts.Events != nil {
		e.GET("/ws", echo.WrapHandler(opts.Events), auth...)
	}

	api := e.Group(ApiPrefix, auth...)
	routesMu.Lock()
	for _, r := range routes {
		api.Add(r.method, r.path, r.handler)
	}
	routesMu.Unlock()

	return &Server{root: e, addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)}
}

// ServeHTTP makes the server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.root.ServeHTTP(w, r)
}

// Start blocks until the server is shut down.
func (s *Server) Start() error {
	zap.L().Info("admin api listening", zap.String("namespace", "webserver"), zap.String("addr", s.addr))
	err := s.root.Start(s.addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.root.Shutdown(ctx)
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type jsonSerializer struct{}

func (jsonSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (jsonSerializer) Deserialize(c echo.Context, i interface{}) error {
	if err := json.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return nil
}

func inject(values map[string]interface{}) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for k, v := range values {
				c.Set(k, v)
			}
			return next(c)
		}
	}
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("namespace", "webserver"),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				zap.L().Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			zap.L().Debug("request", fields...)
			return nil
		},
	})
}

// IssueToken signs an HS256 bearer token accepted by the API.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("web.secret is empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
