package controller_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keygate/passport/internal/controller"

	"gotest.tools/v3/assert"
)

func TestSSOLoginHandler(t *testing.T) {
	app := setupTestApp(t)

	_, err := app.Users.CreateUser("alice", "alice@example.com", "Alice", "hunter2")
	assert.NilError(t, err)

	cookie := loginSessionCookie(t, app)
	assert.Assert(t, cookie.Value != "")

	// Wrong password
	body, err := json.Marshal(controller.SSOLoginRequest{
		Username: "alice",
		Password: "wrong",
	})
	assert.NilError(t, err)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/sso/login", strings.NewReader(string(body)))
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 401, recorder.Code)
	assert.Assert(t, strings.Contains(recorder.Body.String(), "not_logged_in"))

	// Malformed body
	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/sso/login", strings.NewReader("not-json"))
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 400, recorder.Code)
}

func TestSSOAuthorizeHandler(t *testing.T) {
	app := setupTestApp(t)

	_, err := app.Users.CreateUser("alice", "alice@example.com", "Alice", "hunter2")
	assert.NilError(t, err)

	// No session: need_login with the login URL
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/sso/authorize?client_key=acme", nil)
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)

	var res map[string]any
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &res))
	assert.Equal(t, true, res["need_login"])

	// With a session: a token bound to the client
	cookie := loginSessionCookie(t, app)

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/sso/authorize?client_key=acme", nil)
	req.AddCookie(cookie)
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)

	var info struct {
		NeedLogin bool `json:"need_login"`
		Token     struct {
			Token     string `json:"token"`
			ClientKey string `json:"client_key"`
		} `json:"token"`
	}
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &info))
	assert.Assert(t, !info.NeedLogin)
	assert.Equal(t, "acme", info.Token.ClientKey)

	// Validate the minted token through the endpoint
	body, err := json.Marshal(controller.SSOTokenRequest{Token: info.Token.Token})
	assert.NilError(t, err)

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/sso/validate", strings.NewReader(string(body)))
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)
	assert.Assert(t, strings.Contains(recorder.Body.String(), `"valid":true`))
}

func TestSSOStatusAndLogout(t *testing.T) {
	app := setupTestApp(t)

	_, err := app.Users.CreateUser("alice", "alice@example.com", "Alice", "hunter2")
	assert.NilError(t, err)

	cookie := loginSessionCookie(t, app)

	// Bind a client
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/sso/authorize?client_key=acme", nil)
	req.AddCookie(cookie)
	app.Router.ServeHTTP(recorder, req)
	assert.Equal(t, 200, recorder.Code)

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/sso/status?client_key=acme", nil)
	req.AddCookie(cookie)
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)

	var status struct {
		LoggedIn       bool `json:"logged_in"`
		ClientLoggedIn bool `json:"client_logged_in"`
	}
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
	assert.Assert(t, status.LoggedIn)
	assert.Assert(t, status.ClientLoggedIn)

	// Client logout keeps the session
	body, err := json.Marshal(controller.SSOLogoutRequest{ClientKey: "acme"})
	assert.NilError(t, err)

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/sso/logout", strings.NewReader(string(body)))
	req.AddCookie(cookie)
	app.Router.ServeHTTP(recorder, req)
	assert.Equal(t, 200, recorder.Code)

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/sso/status?client_key=acme", nil)
	req.AddCookie(cookie)
	app.Router.ServeHTTP(recorder, req)

	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
	assert.Assert(t, status.LoggedIn)
	assert.Assert(t, !status.ClientLoggedIn)

	// Global logout tears everything down
	body, err = json.Marshal(controller.SSOLogoutRequest{Global: true})
	assert.NilError(t, err)

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/sso/logout", strings.NewReader(string(body)))
	req.AddCookie(cookie)
	app.Router.ServeHTTP(recorder, req)
	assert.Equal(t, 200, recorder.Code)

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/sso/status", nil)
	req.AddCookie(cookie)
	app.Router.ServeHTTP(recorder, req)

	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
	assert.Assert(t, !status.LoggedIn)
}

func TestSSORefreshHandler(t *testing.T) {
	app := setupTestApp(t)

	_, err := app.Users.CreateUser("alice", "alice@example.com", "Alice", "hunter2")
	assert.NilError(t, err)

	cookie := loginSessionCookie(t, app)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/sso/authorize?client_key=acme", nil)
	req.AddCookie(cookie)
	app.Router.ServeHTTP(recorder, req)
	assert.Equal(t, 200, recorder.Code)

	var info struct {
		Token struct {
			Token string `json:"token"`
		} `json:"token"`
	}
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &info))

	body, err := json.Marshal(controller.SSOTokenRequest{Token: info.Token.Token})
	assert.NilError(t, err)

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/sso/refresh", strings.NewReader(string(body)))
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)

	// The old token no longer validates
	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/sso/validate", strings.NewReader(string(body)))
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 401, recorder.Code)
	assert.Assert(t, strings.Contains(recorder.Body.String(), "invalid_token"))
}
