package bootstrap

import (
	"fmt"
	"strings"

	"github.com/keygate/passport/internal/controller"
	"github.com/keygate/passport/internal/middleware"

	"github.com/gin-gonic/gin"
)

func (app *BootstrapApp) setupRouter() (*gin.Engine, error) {
	engine := gin.New()
	engine.Use(gin.Recovery())

	if len(app.config.TrustedProxies) > 0 {
		err := engine.SetTrustedProxies(strings.Split(app.config.TrustedProxies, ","))

		if err != nil {
			return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
		}
	}

	contextMiddleware := middleware.NewContextMiddleware(middleware.ContextMiddlewareConfig{
		SessionCookieName: app.context.sessionCookieName,
	}, app.services.ssoService, app.services.tokenService)

	err := contextMiddleware.Init()

	if err != nil {
		return nil, fmt.Errorf("failed to initialize context middleware: %w", err)
	}

	engine.Use(contextMiddleware.Middleware())

	zerologMiddleware := middleware.NewZerologMiddleware()

	err = zerologMiddleware.Init()

	if err != nil {
		return nil, fmt.Errorf("failed to initialize zerolog middleware: %w", err)
	}

	engine.Use(zerologMiddleware.Middleware())

	apiRouter := engine.Group("/api")

	cookieConfig := controller.SSOControllerConfig{
		SessionCookieName: app.context.sessionCookieName,
		SecureCookie:      app.config.SecureCookie,
		Domain:            app.context.cookieDomain,
		SessionExpiry:     app.config.SessionExpiry,
	}

	oauthController := controller.NewOAuthController(controller.OAuthControllerConfig{
		LoginURL: app.config.LoginURL,
	}, apiRouter, app.services.clientService, app.services.authCodeService, app.services.tokenService, app.services.ssoService)

	oauthController.SetupRoutes()

	ssoController := controller.NewSSOController(cookieConfig, apiRouter, app.services.ssoService)

	ssoController.SetupRoutes()

	federatedController := controller.NewFederatedController(apiRouter, app.services.brokerService, app.services.ssoService, cookieConfig)

	federatedController.SetupRoutes()

	monitorController := controller.NewMonitorController(apiRouter, app.services.riskService)

	monitorController.SetupRoutes()

	healthController := controller.NewHealthController(apiRouter, app.services.storeService, app.services.databaseService)

	healthController.SetupRoutes()

	return engine, nil
}
