package controller_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/keygate/passport/internal/config"
	"github.com/keygate/passport/internal/controller"
	"github.com/keygate/passport/internal/service"

	"gotest.tools/v3/assert"
)

func loginSessionCookie(t *testing.T, app *testApp) *http.Cookie {
	t.Helper()

	body, err := json.Marshal(controller.SSOLoginRequest{
		Username: "alice",
		Password: "hunter2",
	})
	assert.NilError(t, err)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/sso/login", strings.NewReader(string(body)))
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)

	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == config.SessionCookieName {
			return cookie
		}
	}
	t.Fatal("no session cookie in login response")
	return nil
}

func TestAuthorizationCodeFlow(t *testing.T) {
	app := setupTestApp(t)

	client, err := app.Clients.CreateClient(service.CreateClientInput{
		Key:          "acme",
		Name:         "Acme",
		RedirectURIs: []string{"https://acme.example/cb"},
		Scopes:       []string{"read"},
		GrantTypes:   []string{"authorization_code", "refresh_token"},
	})
	assert.NilError(t, err)

	_, err = app.Users.CreateUser("alice", "alice@example.com", "Alice", "hunter2")
	assert.NilError(t, err)

	cookie := loginSessionCookie(t, app)

	// Authorize with a session redirects back with a code
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/oauth/authorize?client_key=acme&redirect_uri=https%3A%2F%2Facme.example%2Fcb&scope=read&state=xyz", nil)
	req.AddCookie(cookie)
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusFound, recorder.Code)

	location, err := url.Parse(recorder.Header().Get("Location"))
	assert.NilError(t, err)
	assert.Equal(t, "acme.example", location.Host)
	assert.Equal(t, "xyz", location.Query().Get("state"))

	code := location.Query().Get("code")
	assert.Assert(t, code != "")

	// Exchange the code
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", "https://acme.example/cb")
	form.Set("client_key", "acme")
	form.Set("client_secret", client.Secret)

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)

	var tokenRes controller.TokenResponse
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &tokenRes))
	assert.Equal(t, "Bearer", tokenRes.TokenType)
	assert.Equal(t, "read", tokenRes.Scope)
	assert.Assert(t, tokenRes.AccessToken != "")
	assert.Assert(t, tokenRes.RefreshToken != "")
	assert.Assert(t, tokenRes.ExpiresIn > 0)

	// Replaying the code fails
	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 400, recorder.Code)
	assert.Assert(t, strings.Contains(recorder.Body.String(), "invalid_grant"))
}

func TestAuthorizeWithoutSession(t *testing.T) {
	app := setupTestApp(t)

	_, err := app.Clients.CreateClient(service.CreateClientInput{
		Key:          "acme",
		Name:         "Acme",
		RedirectURIs: []string{"https://acme.example/cb"},
	})
	assert.NilError(t, err)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/oauth/authorize?client_key=acme&redirect_uri=https%3A%2F%2Facme.example%2Fcb", nil)
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)

	var res map[string]any
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &res))
	assert.Equal(t, true, res["need_login"])
	assert.Equal(t, "http://localhost:3000/login", res["login_url"])
}

func TestAuthorizeRedirectMismatch(t *testing.T) {
	app := setupTestApp(t)

	_, err := app.Clients.CreateClient(service.CreateClientInput{
		Key:          "acme",
		Name:         "Acme",
		RedirectURIs: []string{"https://acme.example/cb"},
	})
	assert.NilError(t, err)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/oauth/authorize?client_key=acme&redirect_uri=https%3A%2F%2Fevil.example%2Fcb", nil)
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 400, recorder.Code)
	assert.Assert(t, strings.Contains(recorder.Body.String(), "redirect_uri_mismatch"))
}

func TestTokenRefreshGrant(t *testing.T) {
	app := setupTestApp(t)

	client, err := app.Clients.CreateClient(service.CreateClientInput{
		Key:          "acme",
		Name:         "Acme",
		RedirectURIs: []string{"https://acme.example/cb"},
		GrantTypes:   []string{"refresh_token"},
	})
	assert.NilError(t, err)

	pair, err := app.Tokens.IssuePair(httptest.NewRequest("GET", "/", nil).Context(), client, 1, "", service.RequestMeta{})
	assert.NilError(t, err)

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", pair.RefreshToken.Token)
	form.Set("client_key", "acme")
	form.Set("client_secret", client.Secret)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)

	var tokenRes controller.TokenResponse
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &tokenRes))
	assert.Assert(t, tokenRes.RefreshToken != pair.RefreshToken.Token)

	// The rotated-out refresh token is dead
	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 401, recorder.Code)
	assert.Assert(t, strings.Contains(recorder.Body.String(), "invalid_token"))
}

func TestTokenClientCredentialsGrant(t *testing.T) {
	app := setupTestApp(t)

	client, err := app.Clients.CreateClient(service.CreateClientInput{
		Key:          "acme",
		Name:         "Acme",
		RedirectURIs: []string{"https://acme.example/cb"},
		Scopes:       []string{"read"},
		GrantTypes:   []string{"client_credentials"},
	})
	assert.NilError(t, err)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "read")
	form.Set("client_key", "acme")
	form.Set("client_secret", client.Secret)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)

	var tokenRes controller.TokenResponse
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &tokenRes))
	assert.Assert(t, tokenRes.AccessToken != "")
	assert.Equal(t, "", tokenRes.RefreshToken)
}

func TestTokenBadClientSecret(t *testing.T) {
	app := setupTestApp(t)

	_, err := app.Clients.CreateClient(service.CreateClientInput{
		Key:          "acme",
		Name:         "Acme",
		RedirectURIs: []string{"https://acme.example/cb"},
		GrantTypes:   []string{"client_credentials"},
	})
	assert.NilError(t, err)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_key", "acme")
	form.Set("client_secret", "wrong")

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 401, recorder.Code)
	assert.Assert(t, strings.Contains(recorder.Body.String(), "invalid_client"))
}

func TestRevokeEndpoint(t *testing.T) {
	app := setupTestApp(t)

	client, err := app.Clients.CreateClient(service.CreateClientInput{
		Key:          "acme",
		Name:         "Acme",
		RedirectURIs: []string{"https://acme.example/cb"},
		GrantTypes:   []string{"authorization_code"},
	})
	assert.NilError(t, err)

	pair, err := app.Tokens.IssuePair(httptest.NewRequest("GET", "/", nil).Context(), client, 1, "", service.RequestMeta{})
	assert.NilError(t, err)

	form := url.Values{}
	form.Set("token", pair.AccessToken.Token)
	form.Set("token_type_hint", config.TokenTypeAccess)
	form.Set("client_key", "acme")
	form.Set("client_secret", client.Secret)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/oauth/revoke", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)

	// Revoking an unknown token still succeeds
	form.Set("token", "never-issued")

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/oauth/revoke", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	app.Router.ServeHTTP(recorder, req)

	assert.Equal(t, 200, recorder.Code)
}
