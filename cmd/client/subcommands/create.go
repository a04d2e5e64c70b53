package subcommands

import (
	"errors"

	"github.com/keygate/passport/internal/service"
	"github.com/keygate/passport/internal/utils"

	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var interactive bool
var databasePath string
var key string
var name string
var redirectURIs string
var scopes string
var grantTypes string

var CreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a client",
	Long:  `Register a relying-party client either interactively or by passing flags.`,
	Run: func(cmd *cobra.Command, args []string) {
		if interactive {
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().Title("Name").Value(&name).Validate((func(s string) error {
						if s == "" {
							return errors.New("name cannot be empty")
						}
						return nil
					})),
					huh.NewInput().Title("Redirect URIs (comma separated)").Value(&redirectURIs).Validate((func(s string) error {
						if s == "" {
							return errors.New("at least one redirect URI is required")
						}
						return nil
					})),
					huh.NewInput().Title("Scopes (comma separated)").Value(&scopes),
					huh.NewInput().Title("Grant types (comma separated)").Value(&grantTypes),
					huh.NewInput().Title("Database path").Value(&databasePath),
				),
			)

			var baseTheme *huh.Theme = huh.ThemeBase()

			formErr := form.WithTheme(baseTheme).Run()

			if formErr != nil {
				log.Fatal().Err(formErr).Msg("Form failed")
			}
		}

		if name == "" || redirectURIs == "" {
			log.Fatal().Msg("Name and redirect URIs cannot be empty")
		}

		if grantTypes == "" {
			grantTypes = "authorization_code,refresh_token"
		}

		databaseService := service.NewDatabaseService(service.DatabaseServiceConfig{
			DatabasePath: databasePath,
		})

		if err := databaseService.Init(); err != nil {
			log.Fatal().Err(err).Msg("Failed to open database")
		}

		clientService := service.NewClientService(service.ClientServiceConfig{}, databaseService.GetDatabase())

		client, err := clientService.CreateClient(service.CreateClientInput{
			Key:          key,
			Name:         name,
			RedirectURIs: utils.ParseCommaString(redirectURIs),
			Scopes:       utils.ParseCommaString(scopes),
			GrantTypes:   utils.ParseCommaString(grantTypes),
		})

		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create client")
		}

		log.Info().Str("key", client.Key).Str("secret", client.Secret).Msg("Client created")
	},
}

func init() {
	CreateCmd.Flags().BoolVar(&interactive, "interactive", false, "Create a client interactively")
	CreateCmd.Flags().StringVar(&databasePath, "database-path", "passport.db", "Path to the database file")
	CreateCmd.Flags().StringVar(&key, "key", "", "Client key, generated when empty")
	CreateCmd.Flags().StringVar(&name, "name", "", "Client name")
	CreateCmd.Flags().StringVar(&redirectURIs, "redirect-uris", "", "Comma separated redirect URIs")
	CreateCmd.Flags().StringVar(&scopes, "scopes", "", "Comma separated scopes")
	CreateCmd.Flags().StringVar(&grantTypes, "grant-types", "", "Comma separated grant types")
}
