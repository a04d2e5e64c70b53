package cmd

import (
	"strings"

	clientCmd "github.com/keygate/passport/cmd/client"
	"github.com/keygate/passport/internal/bootstrap"
	"github.com/keygate/passport/internal/config"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "passport",
	Short: "A credential core with SSO brokering and federated login.",
	Long:  `Passport issues and tracks opaque credentials for relying clients, brokers single sign-on across them and federates login through external identity providers.`,
	Run: func(cmd *cobra.Command, args []string) {
		log.Info().Msg("Parsing config")
		var conf config.Config
		err := viper.Unmarshal(&conf)
		HandleError(err, "Failed to parse config")

		log.Info().Msg("Validating config")
		validate := validator.New()
		err = validate.Struct(conf)
		HandleError(err, "Invalid config")

		logLevel, err := zerolog.ParseLevel(strings.ToLower(conf.LogLevel))
		if err != nil {
			log.Error().Err(err).Msg("Invalid or missing log level, defaulting to info")
			logLevel = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(logLevel)

		log.Info().Str("version", config.Version).Msg("Starting passport")

		app := bootstrap.NewBootstrapApp(conf)
		err = app.Setup()
		HandleError(err, "Failed to start server")
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}

func HandleError(err error, msg string) {
	if err != nil {
		log.Fatal().Err(err).Msg(msg)
	}
}

func init() {
	rootCmd.AddCommand(clientCmd.ClientCmd())
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(healthcheckCmd)

	viper.AutomaticEnv()
	rootCmd.Flags().Int("port", 3000, "Port to run the server on.")
	rootCmd.Flags().String("address", "0.0.0.0", "Address to bind the server to.")
	rootCmd.Flags().String("app-url", "", "The passport URL.")
	rootCmd.Flags().String("login-url", "", "URL of the login page, defaults to app-url/login.")
	rootCmd.Flags().Bool("secure-cookie", false, "Send session cookie over secure connections only.")
	rootCmd.Flags().String("log-level", "info", "Log level.")
	rootCmd.Flags().String("database-path", "passport.db", "Path to the database file.")
	rootCmd.Flags().String("redis-address", "127.0.0.1:6379", "Redis address.")
	rootCmd.Flags().String("redis-password", "", "Redis password.")
	rootCmd.Flags().Int("redis-db", 0, "Redis database number.")
	rootCmd.Flags().String("trusted-proxies", "", "Comma separated list of trusted proxies.")
	rootCmd.Flags().Int("session-expiry", 86400, "Session expiration time in seconds.")
	rootCmd.Flags().Int("sso-token-expiry", 7200, "SSO token expiration time in seconds.")
	rootCmd.Flags().Int("access-token-expiry", 3600, "Access token expiration time in seconds.")
	rootCmd.Flags().Int("refresh-token-expiry", 604800, "Refresh token expiration time in seconds.")
	rootCmd.Flags().Int("code-expiry", 600, "Authorization code expiration time in seconds.")
	rootCmd.Flags().String("trusted-networks", "", "Comma separated list of CIDRs exempt from IP risk weighting.")
	rootCmd.Flags().String("github-client-id", "", "Github OAuth client ID.")
	rootCmd.Flags().String("github-client-secret", "", "Github OAuth client secret.")
	rootCmd.Flags().String("google-client-id", "", "Google OAuth client ID.")
	rootCmd.Flags().String("google-client-secret", "", "Google OAuth client secret.")
	rootCmd.Flags().String("wechat-app-id", "", "WeChat application ID.")
	rootCmd.Flags().String("wechat-app-secret", "", "WeChat application secret.")
	viper.BindEnv("port", "PORT")
	viper.BindEnv("address", "ADDRESS")
	viper.BindEnv("app-url", "APP_URL")
	viper.BindEnv("login-url", "LOGIN_URL")
	viper.BindEnv("secure-cookie", "SECURE_COOKIE")
	viper.BindEnv("log-level", "LOG_LEVEL")
	viper.BindEnv("database-path", "DATABASE_PATH")
	viper.BindEnv("redis-address", "REDIS_ADDRESS")
	viper.BindEnv("redis-password", "REDIS_PASSWORD")
	viper.BindEnv("redis-db", "REDIS_DB")
	viper.BindEnv("trusted-proxies", "TRUSTED_PROXIES")
	viper.BindEnv("session-expiry", "SESSION_EXPIRY")
	viper.BindEnv("sso-token-expiry", "SSO_TOKEN_EXPIRY")
	viper.BindEnv("access-token-expiry", "ACCESS_TOKEN_EXPIRY")
	viper.BindEnv("refresh-token-expiry", "REFRESH_TOKEN_EXPIRY")
	viper.BindEnv("code-expiry", "CODE_EXPIRY")
	viper.BindEnv("trusted-networks", "TRUSTED_NETWORKS")
	viper.BindEnv("github-client-id", "GITHUB_CLIENT_ID")
	viper.BindEnv("github-client-secret", "GITHUB_CLIENT_SECRET")
	viper.BindEnv("google-client-id", "GOOGLE_CLIENT_ID")
	viper.BindEnv("google-client-secret", "GOOGLE_CLIENT_SECRET")
	viper.BindEnv("wechat-app-id", "WECHAT_APP_ID")
	viper.BindEnv("wechat-app-secret", "WECHAT_APP_SECRET")
	viper.BindPFlags(rootCmd.Flags())
}
