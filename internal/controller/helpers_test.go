package controller_test

import (
	"path/filepath"
	"testing"

	"github.com/keygate/passport/internal/config"
	"github.com/keygate/passport/internal/controller"
	"github.com/keygate/passport/internal/middleware"
	"github.com/keygate/passport/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"gotest.tools/v3/assert"
)

type testApp struct {
	Router    *gin.Engine
	API       *gin.RouterGroup
	Redis     *miniredis.Miniredis
	Store     *service.StoreService
	Clients   *service.ClientService
	Users     *service.UserService
	Risk      *service.RiskService
	Blacklist *service.BlacklistService
	Tokens    *service.TokenService
	AuthCodes *service.AuthCodeService
	SSO       *service.SSOService
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	gin.SetMode(gin.TestMode)

	redis := miniredis.RunT(t)

	store := service.NewStoreService(service.StoreServiceConfig{
		Address: redis.Addr(),
	})
	assert.NilError(t, store.Init())
	t.Cleanup(func() {
		store.Close()
	})

	databaseService := service.NewDatabaseService(service.DatabaseServiceConfig{
		DatabasePath: filepath.Join(t.TempDir(), "passport.db"),
	})
	assert.NilError(t, databaseService.Init())
	database := databaseService.GetDatabase()

	clients := service.NewClientService(service.ClientServiceConfig{
		AccessTokenExpiry:  3600,
		RefreshTokenExpiry: 7200,
	}, database)
	assert.NilError(t, clients.Init())

	users := service.NewUserService(database)
	assert.NilError(t, users.Init())

	risk := service.NewRiskService(service.RiskServiceConfig{}, database)
	assert.NilError(t, risk.Init())

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

	router := gin.New()

	contextMiddleware := middleware.NewContextMiddleware(middleware.ContextMiddlewareConfig{
		SessionCookieName: config.SessionCookieName,
	}, sso, tokens)
	assert.NilError(t, contextMiddleware.Init())
	router.Use(contextMiddleware.Middleware())

	api := router.Group("/api")

	cookieConfig := controller.SSOControllerConfig{
		SessionCookieName: config.SessionCookieName,
		SecureCookie:      false,
		Domain:            "localhost",
		SessionExpiry:     3600,
	}

	oauthController := controller.NewOAuthController(controller.OAuthControllerConfig{
		LoginURL: "http://localhost:3000/login",
	}, api, clients, authCodes, tokens, sso)
	oauthController.SetupRoutes()

	ssoController := controller.NewSSOController(cookieConfig, api, sso)
	ssoController.SetupRoutes()

	monitorController := controller.NewMonitorController(api, risk)
	monitorController.SetupRoutes()

	healthController := controller.NewHealthController(api, store, databaseService)
	healthController.SetupRoutes()

	return &testApp{
		Router:    router,
		API:       api,
		Redis:     redis,
		Store:     store,
		Clients:   clients,
		Users:     users,
		Risk:      risk,
		Blacklist: blacklist,
		Tokens:    tokens,
		AuthCodes: authCodes,
		SSO:       sso,
	}
}
