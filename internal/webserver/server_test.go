package webserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/talkincode/wamux/config"
)

func init() {
	ApiGET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get("greeting").(string))
	})
}

func do(s *Server, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestRoutesAreMountedUnderPrefix(t *testing.T) {
	s := New(config.WebConfig{}, Options{Values: map[string]interface{}{"greeting": "pong"}})
	rec := do(s, ApiPrefix+"/ping", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
	if rec := do(s, "/ping", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unprefixed route answered %d", rec.Code)
	}
}

func TestJWTGuardsAPI(t *testing.T) {
	const secret = "s3cret"
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	s := New(config.WebConfig{Secret: secret}, Options{
		Metrics: metrics,
		Values:  map[string]interface{}{"greeting": "pong"},
	})

	rec := do(s, ApiPrefix+"/ping", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Fatalf("body = %s", rec.Body.String())
	}

	token, err := IssueToken(secret, "admin", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if rec := do(s, ApiPrefix+"/ping", token); rec.Code != http.StatusOK {
		t.Fatalf("bearer token: %d", rec.Code)
	}
	if rec := do(s, ApiPrefix+"/ping?token="+token, ""); rec.Code != http.StatusOK {
		t.Fatalf("query token: %d", rec.Code)
	}

	wrong, _ := IssueToken("other", "admin", time.Hour)
	if rec := do(s, ApiPrefix+"/ping", wrong); rec.Code != http.StatusUnauthorized {
		t.Fatalf("foreign token: %d", rec.Code)
	}

	if rec := do(s, "/metrics", ""); rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
}

func TestIssueTokenNeedsSecret(t *testing.T) {
	if _, err := IssueToken("", "admin", time.Hour); err == nil {
		t.Fatal("empty secret accepted")
	}
}

func TestRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(config.WebConfig{}, Options{
		Registerer: reg,
		Values:     map[string]interface{}{"greeting": "pong"},
	})
	do(s, ApiPrefix+"/ping", "")

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if strings.HasSuffix(f.GetName(), "requests_total") {
			return
		}
	}
	t.Fatal("no request counter registered")
}
