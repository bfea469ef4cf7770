package adminapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/talkincode/wamux/config"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/groupaction"
	"github.com/talkincode/wamux/internal/groupcache"
	"github.com/talkincode/wamux/internal/identity"
	"github.com/talkincode/wamux/internal/protocol/protocoltest"
	"github.com/talkincode/wamux/internal/session"
	"github.com/talkincode/wamux/internal/store/storetest"
	"github.com/talkincode/wamux/internal/webserver"
)

const (
	rawPhone = "+1 (415) 555-2671"
	sid      = "session_14155552671"
	groupID  = "120363@g.us"
)

type env struct {
	srv     *webserver.Server
	factory *protocoltest.Factory
	cache   *groupcache.Cache
}

type response struct {
	Success bool                `json:"success"`
	Data    jsoniter.RawMessage `json:"data"`
	Error   string              `json:"error"`
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := storetest.New(t)
	resolver := identity.NewResolver(st.Contacts)
	cache := groupcache.New(st.Groups, resolver)
	factory := protocoltest.NewFactory()
	factory.New = func(string) *protocoltest.Client {
		c := protocoltest.NewClient()
		c.Registered = true
		c.Groups[groupID] = &domain.GroupMetadata{ID: groupID, Subject: "A", Announce: true}
		return c
	}
	reg, err := session.New(session.Deps{
		Factory:  factory,
		Sessions: st.Sessions,
		Tables:   st.Tables,
		Messages: st.Messages,
		Groups:   cache,
	}, session.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(reg.Close)

	svc := &Services{
		Sessions: reg,
		Messages: st.Messages,
		Groups:   cache,
		Settings: st.Settings,
		Actions:  groupaction.NewExecutor(cache, resolver),
	}
	Init()
	srv := webserver.New(config.WebConfig{}, webserver.Options{Values: svc.Values()})
	return &env{srv: srv, factory: factory, cache: cache}
}

func (e *env) call(t *testing.T, method, path, body string) (int, response) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, webserver.ApiPrefix+path, nil)
	} else {
		req = httptest.NewRequest(method, webserver.ApiPrefix+path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	var resp response
	if err := jsoniter.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: bad body %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, resp
}

func (e *env) create(t *testing.T) {
	t.Helper()
	code, resp := e.call(t, http.MethodPost, "/sessions", `{"phone_number":"`+rawPhone+`"}`)
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("create: %d %+v", code, resp)
	}
}

func TestSessionLifecycle(t *testing.T) {
	e := newEnv(t)
	e.create(t)

	code, resp := e.call(t, http.MethodPost, "/sessions", `{"phone_number":"`+rawPhone+`"}`)
	if code != http.StatusConflict || resp.Success || resp.Error != "session_already_exists" {
		t.Fatalf("duplicate: %d %+v", code, resp)
	}

	code, resp = e.call(t, http.MethodGet, "/sessions", "")
	if code != http.StatusOK {
		t.Fatalf("list: %d", code)
	}
	var rows []domain.Session
	if err := jsoniter.Unmarshal(resp.Data, &rows); err != nil || len(rows) != 1 || rows[0].ID != sid {
		t.Fatalf("list data %s: %v", resp.Data, err)
	}

	_, resp = e.call(t, http.MethodGet, "/sessions?extended=1", "")
	var infos []struct {
		ID     string `json:"id"`
		Loaded bool   `json:"loaded"`
	}
	if err := jsoniter.Unmarshal(resp.Data, &infos); err != nil || len(infos) != 1 || !infos[0].Loaded {
		t.Fatalf("extended data %s: %v", resp.Data, err)
	}

	if code, _ := e.call(t, http.MethodGet, "/sessions/14155552671", ""); code != http.StatusOK {
		t.Fatalf("get by phone: %d", code)
	}

	if code, _ := e.call(t, http.MethodDelete, "/sessions/"+sid, ""); code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	code, resp = e.call(t, http.MethodGet, "/sessions/"+sid, "")
	if code != http.StatusNotFound || resp.Error != "session_not_found" {
		t.Fatalf("get after delete: %d %+v", code, resp)
	}
}

func TestCreateValidation(t *testing.T) {
	e := newEnv(t)
	cases := map[string]string{
		`{}`:                     "invalid_parameters",
		`{"phone_number":"abc"}`: "invalid_phone_number",
	}
	for body, want := range cases {
		code, resp := e.call(t, http.MethodPost, "/sessions", body)
		if code != http.StatusBadRequest || resp.Error != want {
			t.Errorf("%s: %d %+v", body, code, resp)
		}
	}
}

func TestPauseResume(t *testing.T) {
	e := newEnv(t)
	e.create(t)

	code, resp := e.call(t, http.MethodPost, "/sessions/"+sid+"/pause", "")
	if code != http.StatusOK {
		t.Fatalf("pause: %d %+v", code, resp)
	}
	var row domain.Session
	_ = jsoniter.Unmarshal(resp.Data, &row)
	if row.Status != domain.StatusPausedUser {
		t.Fatalf("status after pause = %v", row.Status)
	}
	code, resp = e.call(t, http.MethodPost, "/sessions/"+sid+"/pause", "")
	if code != http.StatusConflict || resp.Error != "session_already_paused" {
		t.Fatalf("second pause: %d %+v", code, resp)
	}

	if code, _ := e.call(t, http.MethodPost, "/sessions/"+sid+"/resume", ""); code != http.StatusOK {
		t.Fatalf("resume: %d", code)
	}
	code, resp = e.call(t, http.MethodPost, "/sessions/"+sid+"/resume", "")
	if code != http.StatusConflict || resp.Error != "session_already_active" {
		t.Fatalf("second resume: %d %+v", code, resp)
	}
}

func TestSettings(t *testing.T) {
	e := newEnv(t)
	e.create(t)

	code, resp := e.call(t, http.MethodPut, "/sessions/"+sid+"/settings", `{"bogus":true,"mode":"public"}`)
	if code != http.StatusBadRequest || resp.Error != "invalid_parameters" {
		t.Fatalf("bad update: %d %+v", code, resp)
	}
	_, resp = e.call(t, http.MethodGet, "/sessions/"+sid+"/settings", "")
	var view settingsView
	if err := jsoniter.Unmarshal(resp.Data, &view); err != nil {
		t.Fatal(err)
	}
	if view.Mode != domain.ModePrivate {
		t.Fatalf("rejected update leaked: mode %q", view.Mode)
	}

	code, resp = e.call(t, http.MethodPut, "/sessions/"+sid+"/settings",
		`{"mode":"public","auto_reject_calls":true,"antidelete_mode":"groups"}`)
	if code != http.StatusOK {
		t.Fatalf("update: %d %+v", code, resp)
	}
	if err := jsoniter.Unmarshal(resp.Data, &view); err != nil {
		t.Fatal(err)
	}
	if view.Mode != domain.ModePublic || !view.Activity.AutoRejectCalls || view.AntideleteMode != "groups" {
		t.Fatalf("view = %+v", view)
	}
}

func TestGroups(t *testing.T) {
	e := newEnv(t)
	e.create(t)
	ctx := context.Background()
	if err := e.cache.Put(ctx, sid, &domain.GroupMetadata{ID: groupID, Subject: "A", Announce: true}); err != nil {
		t.Fatal(err)
	}

	_, resp := e.call(t, http.MethodGet, "/sessions/"+sid+"/groups", "")
	var groups []domain.GroupSummary
	if err := jsoniter.Unmarshal(resp.Data, &groups); err != nil || len(groups) != 1 {
		t.Fatalf("groups %s: %v", resp.Data, err)
	}

	code, resp := e.call(t, http.MethodGet, "/sessions/"+sid+"/groups/999@g.us", "")
	if code != http.StatusNotFound || resp.Error != "group_not_found" {
		t.Fatalf("missing group: %d %+v", code, resp)
	}

	code, resp = e.call(t, http.MethodPost, "/sessions/"+sid+"/groups/"+groupID+"/actions/name", `{"subject":"B"}`)
	if code != http.StatusOK {
		t.Fatalf("rename: %d %+v", code, resp)
	}
	if !e.factory.Last(sid).Called("subject:" + groupID + ":B") {
		t.Fatal("rename not sent")
	}

	code, resp = e.call(t, http.MethodPost, "/sessions/"+sid+"/groups/"+groupID+"/actions/mute", "")
	if code != http.StatusConflict || resp.Error != "already_in_requested_state" {
		t.Fatalf("mute muted group: %d %+v", code, resp)
	}
	code, resp = e.call(t, http.MethodPost, "/sessions/"+sid+"/groups/"+groupID+"/actions/explode", "")
	if code != http.StatusBadRequest || resp.Error != "unknown_action" {
		t.Fatalf("unknown action: %d %+v", code, resp)
	}
}

func TestMessages(t *testing.T) {
	e := newEnv(t)
	e.create(t)
	code, resp := e.call(t, http.MethodGet, "/sessions/"+sid+"/messages?page=1&page_size=10", "")
	if code != http.StatusOK {
		t.Fatalf("messages: %d %+v", code, resp)
	}
	var page struct {
		Total int64 `json:"total"`
	}
	if err := jsoniter.Unmarshal(resp.Data, &page); err != nil || page.Total != 0 {
		t.Fatalf("page %s: %v", resp.Data, err)
	}
}
