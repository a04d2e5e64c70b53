package service_test

import (
	"context"
	"testing"

	"github.com/keygate/passport/internal/service"

	"gotest.tools/v3/assert"
)

func TestSSOLogin(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	_, err := stack.Users.CreateUser("alice", "alice@example.com", "Alice", "hunter2")
	assert.NilError(t, err)

	session, token, err := stack.SSO.Login(ctx, "alice", "hunter2", "acme")
	assert.NilError(t, err)
	assert.Equal(t, "alice", session.Username)
	assert.Equal(t, "acme", token.ClientKey)

	_, _, err = stack.SSO.Login(ctx, "alice", "wrong", "acme")
	assert.ErrorIs(t, err, service.ErrNotLoggedIn)

	_, _, err = stack.SSO.Login(ctx, "nobody", "hunter2", "acme")
	assert.ErrorIs(t, err, service.ErrNotLoggedIn)
}

func TestGetLoginInfo(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	_, err := stack.Users.CreateUser("alice", "alice@example.com", "Alice", "hunter2")
	assert.NilError(t, err)

	// Unauthenticated browsers are pointed at the login page
	info, err := stack.SSO.GetLoginInfo(ctx, "", "acme")
	assert.NilError(t, err)
	assert.Assert(t, info.NeedLogin)
	assert.Equal(t, "http://localhost:3000/login", info.LoginURL)

	session, _, err := stack.SSO.Login(ctx, "alice", "hunter2", "")
	assert.NilError(t, err)

	info, err = stack.SSO.GetLoginInfo(ctx, session.ID, "acme")
	assert.NilError(t, err)
	assert.Assert(t, !info.NeedLogin)
	assert.Equal(t, "acme", info.Token.ClientKey)

	status, err := stack.SSO.CheckStatus(ctx, session.ID, "acme")
	assert.NilError(t, err)
	assert.Assert(t, status.LoggedIn)
	assert.Assert(t, status.ClientLoggedIn)

	status, err = stack.SSO.CheckStatus(ctx, session.ID, "other")
	assert.NilError(t, err)
	assert.Assert(t, status.LoggedIn)
	assert.Assert(t, !status.ClientLoggedIn)
}

func TestSSOTokenValidateAndRefresh(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	user, err := stack.Users.CreateUser("alice", "alice@example.com", "Alice", "hunter2")
	assert.NilError(t, err)

	_, token, err := stack.SSO.Login(ctx, "alice", "hunter2", "acme")
	assert.NilError(t, err)

	// Validation does not consume the token
	for i := 0; i < 3; i++ {
		record, err := stack.SSO.ValidateToken(ctx, token.Token, testMeta())
		assert.NilError(t, err)
		assert.Equal(t, user.ID, record.UserID)
	}

	fresh, err := stack.SSO.RefreshToken(ctx, token.Token, testMeta())
	assert.NilError(t, err)
	assert.Assert(t, fresh.Token != token.Token)

	_, err = stack.SSO.ValidateToken(ctx, token.Token, testMeta())
	assert.ErrorIs(t, err, service.ErrTokenInvalid)

	_, err = stack.SSO.ValidateToken(ctx, fresh.Token, testMeta())
	assert.NilError(t, err)
}

func TestLogoutClient(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	_, err := stack.Users.CreateUser("alice", "alice@example.com", "Alice", "hunter2")
	assert.NilError(t, err)

	session, acmeToken, err := stack.SSO.Login(ctx, "alice", "hunter2", "acme")
	assert.NilError(t, err)

	otherInfo, err := stack.SSO.GetLoginInfo(ctx, session.ID, "other")
	assert.NilError(t, err)

	err = stack.SSO.LogoutClient(ctx, session.ID, "acme")
	assert.NilError(t, err)

	// Session and the other binding survive
	status, err := stack.SSO.CheckStatus(ctx, session.ID, "acme")
	assert.NilError(t, err)
	assert.Assert(t, status.LoggedIn)
	assert.Assert(t, !status.ClientLoggedIn)

	status, err = stack.SSO.CheckStatus(ctx, session.ID, "other")
	assert.NilError(t, err)
	assert.Assert(t, status.ClientLoggedIn)

	_, err = stack.SSO.ValidateToken(ctx, acmeToken.Token, testMeta())
	assert.ErrorIs(t, err, service.ErrTokenInvalid)

	_, err = stack.SSO.ValidateToken(ctx, otherInfo.Token.Token, testMeta())
	assert.NilError(t, err)
}

func TestLogoutGlobal(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	_, err := stack.Users.CreateUser("alice", "alice@example.com", "Alice", "hunter2")
	assert.NilError(t, err)

	session, acmeToken, err := stack.SSO.Login(ctx, "alice", "hunter2", "acme")
	assert.NilError(t, err)

	otherInfo, err := stack.SSO.GetLoginInfo(ctx, session.ID, "other")
	assert.NilError(t, err)

	err = stack.SSO.LogoutGlobal(ctx, session.ID, testMeta())
	assert.NilError(t, err)

	// Everything is gone
	_, err = stack.SSO.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, service.ErrNotLoggedIn)

	_, err = stack.SSO.ValidateToken(ctx, acmeToken.Token, testMeta())
	assert.ErrorIs(t, err, service.ErrTokenInvalid)

	_, err = stack.SSO.ValidateToken(ctx, otherInfo.Token.Token, testMeta())
	assert.ErrorIs(t, err, service.ErrTokenInvalid)

	err = stack.SSO.LogoutGlobal(ctx, session.ID, testMeta())
	assert.ErrorIs(t, err, service.ErrNotLoggedIn)
}
