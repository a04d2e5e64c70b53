package bootstrap

import (
	"fmt"

	"github.com/keygate/passport/internal/config"
	"github.com/keygate/passport/internal/utils"

	"github.com/rs/zerolog/log"
)

type BootstrapApp struct {
	config  config.Config
	context struct {
		cookieDomain      string
		sessionCookieName string
	}
	services Services
}

func NewBootstrapApp(config config.Config) *BootstrapApp {
	return &BootstrapApp{
		config: config,
	}
}

func (app *BootstrapApp) Setup() error {
	// Cookie scoping
	cookieDomain, err := utils.GetCookieDomain(app.config.AppURL)

	if err != nil {
		return err
	}

	app.context.cookieDomain = cookieDomain
	app.context.sessionCookieName = config.SessionCookieName

	if app.config.LoginURL == "" {
		app.config.LoginURL = app.config.AppURL + "/login"
	}

	// Dumps
	log.Trace().Interface("config", app.config).Msg("Config dump")
	log.Trace().Str("cookieDomain", app.context.cookieDomain).Msg("Cookie domain")

	// Services
	services, err := app.initServices()

	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	app.services = services
	defer app.services.storeService.Close()

	// Setup router
	router, err := app.setupRouter()

	if err != nil {
		return fmt.Errorf("failed to setup routes: %w", err)
	}

	// Start server
	address := fmt.Sprintf("%s:%d", app.config.Address, app.config.Port)
	log.Info().Msgf("Starting server on %s", address)
	if err := router.Run(address); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}

	return nil
}
