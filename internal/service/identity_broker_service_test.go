package service_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/keygate/passport/internal/config"
	"github.com/keygate/passport/internal/model"
	"github.com/keygate/passport/internal/service"
	"github.com/keygate/passport/internal/utils"

	"gotest.tools/v3/assert"
)

func newTestBroker(t *testing.T, stack *testStack) *service.IdentityBrokerService {
	t.Helper()

	broker := service.NewIdentityBrokerService(service.IdentityBrokerServiceConfig{
		Providers: map[string]config.IdentityProviderConfig{
			"github": {
				ClientID:     "test-id",
				ClientSecret: "test-secret",
				RedirectURL:  "http://localhost:3000/api/federated/github/callback",
			},
		},
	}, stack.Store, stack.Database, stack.Users)

	err := broker.Init()
	assert.NilError(t, err)

	return broker
}

func TestProviderCallHonorsCallerContext(t *testing.T) {
	providerConfig := config.IdentityProviderConfig{
		ClientID:     "test-id",
		ClientSecret: "test-secret",
		RedirectURL:  "http://localhost:3000/cb",
	}

	github := service.NewGithubIdentityService(providerConfig)
	assert.NilError(t, github.Init())

	google := service.NewGoogleIdentityService(providerConfig)
	assert.NilError(t, google.Init())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled caller context stops the outbound call before any dial.
	_, err := github.ExchangeCode(ctx, "code")
	assert.ErrorIs(t, err, service.ErrProviderUnavailable)

	_, err = google.ExchangeCode(ctx, "code")
	assert.ErrorIs(t, err, service.ErrProviderUnavailable)

	_, err = github.FetchProfile(ctx, &model.ProviderToken{AccessToken: "tok"})
	assert.ErrorIs(t, err, service.ErrProviderUnavailable)
}

func TestBeginAuthorization(t *testing.T) {
	stack := newTestStack(t)
	broker := newTestBroker(t, stack)
	ctx := context.Background()

	_, err := broker.BeginAuthorization(ctx, "wechat", "")
	assert.ErrorIs(t, err, service.ErrProviderError)

	authURL, err := broker.BeginAuthorization(ctx, "github", "https://acme.example/after")
	assert.NilError(t, err)

	parsed, err := url.Parse(authURL)
	assert.NilError(t, err)
	assert.Equal(t, "github.com", parsed.Host)

	state := parsed.Query().Get("state")
	assert.Assert(t, state != "")

	stored, err := stack.Store.Exists(ctx, stack.Store.Key("fed", "state", state))
	assert.NilError(t, err)
	assert.Assert(t, stored)
}

func TestCallbackStateValidation(t *testing.T) {
	stack := newTestStack(t)
	broker := newTestBroker(t, stack)
	ctx := context.Background()

	_, err := broker.HandleCallback(ctx, "github", "some-code", "")
	assert.ErrorIs(t, err, service.ErrProviderStateInvalid)

	_, err = broker.HandleCallback(ctx, "github", "some-code", "never-issued")
	assert.ErrorIs(t, err, service.ErrProviderStateInvalid)

	// A state issued for one provider is rejected by another
	record := model.FederatedState{
		State:     "cross-provider",
		Provider:  "google",
		CreatedAt: time.Now().Unix(),
	}
	err = stack.Store.SetJSON(ctx, stack.Store.Key("fed", "state", record.State), record, time.Minute)
	assert.NilError(t, err)

	_, err = broker.HandleCallback(ctx, "github", "some-code", record.State)
	assert.ErrorIs(t, err, service.ErrProviderStateInvalid)

	// The mismatch consumed the state, a retry fails the same way
	stored, err := stack.Store.Exists(ctx, stack.Store.Key("fed", "state", record.State))
	assert.NilError(t, err)
	assert.Assert(t, !stored)
}

func seedPendingBind(t *testing.T, stack *testStack, userID int64) string {
	t.Helper()

	pending := model.PendingBind{
		Code:        utils.GenerateRandomString(16),
		Provider:    "github",
		Subject:     "gh-1234",
		Email:       "alice@example.com",
		Name:        "Alice",
		UserID:      userID,
		AccessToken: "gho_token",
		ExpiresAt:   time.Now().Add(30 * time.Minute).Unix(),
	}

	err := stack.Store.SetJSON(context.Background(), stack.Store.Key("fed", "pending", pending.Code), pending, 30*time.Minute)
	assert.NilError(t, err)

	return pending.Code
}

func TestBindAndUnbind(t *testing.T) {
	stack := newTestStack(t)
	broker := newTestBroker(t, stack)
	ctx := context.Background()

	user, err := stack.Users.CreateUser("alice", "alice@example.com", "Alice", "hunter2")
	assert.NilError(t, err)

	code := seedPendingBind(t, stack, user.ID)

	link, err := broker.Bind(ctx, user.ID, "github", code)
	assert.NilError(t, err)
	assert.Equal(t, "gh-1234", link.Subject)
	assert.Equal(t, user.ID, link.UserID)

	// The pending record is one-shot
	_, err = broker.Bind(ctx, user.ID, "github", code)
	assert.ErrorIs(t, err, service.ErrCodeInvalid)

	links, err := broker.Links(user.ID)
	assert.NilError(t, err)
	assert.Equal(t, 1, len(links))

	err = broker.Unbind(ctx, user.ID, "github")
	assert.NilError(t, err)

	links, err = broker.Links(user.ID)
	assert.NilError(t, err)
	assert.Equal(t, 0, len(links))

	// The local account survives the unbind
	_, err = stack.Users.GetByID(user.ID)
	assert.NilError(t, err)

	err = broker.Unbind(ctx, user.ID, "github")
	assert.ErrorIs(t, err, service.ErrNotLoggedIn)
}

func TestBindWrongUser(t *testing.T) {
	stack := newTestStack(t)
	broker := newTestBroker(t, stack)
	ctx := context.Background()

	alice, err := stack.Users.CreateUser("alice", "alice@example.com", "Alice", "hunter2")
	assert.NilError(t, err)
	bob, err := stack.Users.CreateUser("bob", "bob@example.com", "Bob", "hunter2")
	assert.NilError(t, err)

	code := seedPendingBind(t, stack, alice.ID)

	_, err = broker.Bind(ctx, bob.ID, "github", code)
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestBindWrongProvider(t *testing.T) {
	stack := newTestStack(t)
	broker := newTestBroker(t, stack)
	ctx := context.Background()

	user, err := stack.Users.CreateUser("alice", "alice@example.com", "Alice", "hunter2")
	assert.NilError(t, err)

	code := seedPendingBind(t, stack, user.ID)

	_, err = broker.Bind(ctx, user.ID, "google", code)
	assert.ErrorIs(t, err, service.ErrCodeInvalid)
}
