package service_test

import (
	"path/filepath"
	"testing"

	"github.com/keygate/passport/internal/service"

	"github.com/alicebob/miniredis/v2"
	"gorm.io/gorm"
	"gotest.tools/v3/assert"
)

func newTestStore(t *testing.T) *service.StoreService {
	t.Helper()

	redis := miniredis.RunT(t)

	store := service.NewStoreService(service.StoreServiceConfig{
		Address: redis.Addr(),
	})

	err := store.Init()
	assert.NilError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	databaseService := service.NewDatabaseService(service.DatabaseServiceConfig{
		DatabasePath: filepath.Join(t.TempDir(), "passport.db"),
	})

	err := databaseService.Init()
	assert.NilError(t, err)

	return databaseService.GetDatabase()
}

func newTestClientService(t *testing.T, database *gorm.DB) *service.ClientService {
	t.Helper()

	clientService := service.NewClientService(service.ClientServiceConfig{
		AccessTokenExpiry:  3600,
		RefreshTokenExpiry: 7200,
	}, database)

	err := clientService.Init()
	assert.NilError(t, err)

	return clientService
}

func newTestRiskService(t *testing.T, database *gorm.DB) *service.RiskService {
	t.Helper()

	riskService := service.NewRiskService(service.RiskServiceConfig{
		TrustedNetworks: []string{"10.0.0.0/8"},
	}, database)

	err := riskService.Init()
	assert.NilError(t, err)

	return riskService
}

type testStack struct {
	Store     *service.StoreService
	Database  *gorm.DB
	Clients   *service.ClientService
	Users     *service.UserService
	Risk      *service.RiskService
	Blacklist *service.BlacklistService
	Tokens    *service.TokenService
	AuthCodes *service.AuthCodeService
	SSO       *service.SSOService
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	store := newTestStore(t)
	database := newTestDatabase(t)
	clients := newTestClientService(t, database)
	risk := newTestRiskService(t, database)

	users := service.NewUserService(database)
	assert.NilError(t, users.Init())

	blacklist := service.NewBlacklistService(store)
	assert.NilError(t, blacklist.Init())

	tokens := service.NewTokenService(store, clients, blacklist, risk)
	assert.NilError(t, tokens.Init())

	authCodes := service.NewAuthCodeService(service.AuthCodeServiceConfig{
		CodeExpiry: 600,
	}, store, clients, tokens)
	assert.NilError(t, authCodes.Init())

	sso := service.NewSSOService(service.SSOServiceConfig{
		LoginURL:       "http://localhost:3000/login",
		SessionExpiry:  3600,
		SSOTokenExpiry: 7200,
	}, store, users, risk)
	assert.NilError(t, sso.Init())

	return &testStack{
		Store:     store,
		Database:  database,
		Clients:   clients,
		Users:     users,
		Risk:      risk,
		Blacklist: blacklist,
		Tokens:    tokens,
		AuthCodes: authCodes,
		SSO:       sso,
	}
}

func testMeta() service.RequestMeta {
	return service.RequestMeta{
		ClientIP:   "203.0.113.7",
		UserAgent:  "Mozilla/5.0",
		RequestURL: "/api/oauth/token",
	}
}
