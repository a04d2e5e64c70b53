package bootstrap

import (
	"github.com/keygate/passport/internal/config"
	"github.com/keygate/passport/internal/service"
	"github.com/keygate/passport/internal/utils"
)

type Services struct {
	databaseService  *service.DatabaseService
	storeService     *service.StoreService
	clientService    *service.ClientService
	userService      *service.UserService
	riskService      *service.RiskService
	blacklistService *service.BlacklistService
	tokenService     *service.TokenService
	authCodeService  *service.AuthCodeService
	ssoService       *service.SSOService
	brokerService    *service.IdentityBrokerService
}

func (app *BootstrapApp) initServices() (Services, error) {
	services := Services{}

	databaseService := service.NewDatabaseService(service.DatabaseServiceConfig{
		DatabasePath: app.config.DatabasePath,
	})

	err := databaseService.Init()

	if err != nil {
		return Services{}, err
	}

	services.databaseService = databaseService
	database := databaseService.GetDatabase()

	storeService := service.NewStoreService(service.StoreServiceConfig{
		Address:  app.config.RedisAddress,
		Password: app.config.RedisPassword,
		DB:       app.config.RedisDB,
	})

	err = storeService.Init()

	if err != nil {
		return Services{}, err
	}

	services.storeService = storeService

	clientService := service.NewClientService(service.ClientServiceConfig{
		AccessTokenExpiry:  app.config.AccessTokenExpiry,
		RefreshTokenExpiry: app.config.RefreshTokenExpiry,
	}, database)

	err = clientService.Init()

	if err != nil {
		return Services{}, err
	}

	services.clientService = clientService

	userService := service.NewUserService(database)

	err = userService.Init()

	if err != nil {
		return Services{}, err
	}

	services.userService = userService

	riskService := service.NewRiskService(service.RiskServiceConfig{
		TrustedNetworks: utils.ParseCommaString(app.config.TrustedNetworks),
	}, database)

	err = riskService.Init()

	if err != nil {
		return Services{}, err
	}

	services.riskService = riskService

	blacklistService := service.NewBlacklistService(storeService)

	err = blacklistService.Init()

	if err != nil {
		return Services{}, err
	}

	services.blacklistService = blacklistService

	tokenService := service.NewTokenService(storeService, clientService, blacklistService, riskService)

	err = tokenService.Init()

	if err != nil {
		return Services{}, err
	}

	services.tokenService = tokenService

	authCodeService := service.NewAuthCodeService(service.AuthCodeServiceConfig{
		CodeExpiry: app.config.CodeExpiry,
	}, storeService, clientService, tokenService)

	err = authCodeService.Init()

	if err != nil {
		return Services{}, err
	}

	services.authCodeService = authCodeService

	ssoService := service.NewSSOService(service.SSOServiceConfig{
		LoginURL:       app.config.LoginURL,
		SessionExpiry:  app.config.SessionExpiry,
		SSOTokenExpiry: app.config.SSOTokenExpiry,
	}, storeService, userService, riskService)

	err = ssoService.Init()

	if err != nil {
		return Services{}, err
	}

	services.ssoService = ssoService

	brokerService := service.NewIdentityBrokerService(service.IdentityBrokerServiceConfig{
		Providers: app.identityProviders(),
	}, storeService, database, userService)

	err = brokerService.Init()

	if err != nil {
		return Services{}, err
	}

	services.brokerService = brokerService

	return services, nil
}

// identityProviders assembles the provider map from flat config; providers
// without credentials stay unconfigured.
func (app *BootstrapApp) identityProviders() map[string]config.IdentityProviderConfig {
	providers := make(map[string]config.IdentityProviderConfig)

	if app.config.GithubClientID != "" && app.config.GithubClientSecret != "" {
		providers["github"] = config.IdentityProviderConfig{
			ClientID:     app.config.GithubClientID,
			ClientSecret: app.config.GithubClientSecret,
			RedirectURL:  app.config.AppURL + "/api/federated/github/callback",
		}
	}

	if app.config.GoogleClientID != "" && app.config.GoogleClientSecret != "" {
		providers["google"] = config.IdentityProviderConfig{
			ClientID:     app.config.GoogleClientID,
			ClientSecret: app.config.GoogleClientSecret,
			RedirectURL:  app.config.AppURL + "/api/federated/google/callback",
		}
	}

	if app.config.WechatAppID != "" && app.config.WechatAppSecret != "" {
		providers["wechat"] = config.IdentityProviderConfig{
			ClientID:     app.config.WechatAppID,
			ClientSecret: app.config.WechatAppSecret,
			RedirectURL:  app.config.AppURL + "/api/federated/wechat/callback",
		}
	}

	return providers
}
