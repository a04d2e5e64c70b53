package controller

import (
	"fmt"
	"net/http"

	"github.com/keygate/passport/internal/config"
	"github.com/keygate/passport/internal/middleware"
	"github.com/keygate/passport/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/go-querystring/query"
	"github.com/rs/zerolog/log"
)

type FederatedBindRequest struct {
	Provider string `json:"provider" binding:"required"`
	BindCode string `json:"bind_code" binding:"required"`
}

type FederatedController struct {
	Router *gin.RouterGroup
	Broker *service.IdentityBrokerService
	SSO    *service.SSOService
	Cookie SSOControllerConfig
}

func NewFederatedController(router *gin.RouterGroup, broker *service.IdentityBrokerService, sso *service.SSOService, cookie SSOControllerConfig) *FederatedController {
	return &FederatedController{
		Router: router,
		Broker: broker,
		SSO:    sso,
		Cookie: cookie,
	}
}

func (controller *FederatedController) SetupRoutes() {
	fedGroup := controller.Router.Group("/federated")
	fedGroup.GET("/:provider/authorize", controller.authorizeHandler)
	fedGroup.GET("/:provider/callback", controller.callbackHandler)
	fedGroup.POST("/bind", controller.bindHandler)
	fedGroup.DELETE("/:provider", controller.unbindHandler)
	fedGroup.GET("/links", controller.linksHandler)
	fedGroup.POST("/:provider/refresh", controller.refreshHandler)
}

func (controller *FederatedController) authorizeHandler(c *gin.Context) {
	provider := c.Param("provider")

	authURL, err := controller.Broker.BeginAuthorization(c.Request.Context(), provider, c.Query("redirect_uri"))
	if err != nil {
		handleError(c, err)
		return
	}

	log.Debug().Str("provider", provider).Msg("Redirecting to identity provider")
	c.Redirect(http.StatusTemporaryRedirect, authURL)
}

// callbackHandler resolves the provider callback. A resolved account gets a
// session immediately; a matching local email gets a bind code instead and
// the user must confirm the link while logged in.
func (controller *FederatedController) callbackHandler(c *gin.Context) {
	provider := c.Param("provider")

	result, err := controller.Broker.HandleCallback(c.Request.Context(), provider, c.Query("code"), c.Query("state"))
	if err != nil {
		handleError(c, err)
		return
	}

	switch result.Outcome {
	case service.OutcomeNeedBind:
		if result.RedirectURI != "" {
			queries, err := query.Values(config.NeedBindQuery{
				BindCode: result.BindCode,
				Provider: provider,
			})
			if err != nil {
				handleError(c, service.ErrSystemError)
				return
			}
			c.Redirect(http.StatusFound, fmt.Sprintf("%s?%s", result.RedirectURI, queries.Encode()))
			return
		}
		c.JSON(200, gin.H{
			"status":    200,
			"need_bind": true,
			"bind_code": result.BindCode,
			"provider":  provider,
		})
	case service.OutcomeLogin:
		session, err := controller.SSO.CreateSession(c.Request.Context(), result.User)
		if err != nil {
			handleError(c, err)
			return
		}

		c.SetCookie(controller.Cookie.SessionCookieName, session.ID, controller.Cookie.SessionExpiry, "/", controller.Cookie.Domain, controller.Cookie.SecureCookie, true)

		log.Info().Str("provider", provider).Int64("userId", result.User.ID).Msg("Federated login")

		if result.RedirectURI != "" {
			c.Redirect(http.StatusFound, result.RedirectURI)
			return
		}
		c.JSON(200, gin.H{
			"status":   200,
			"message":  "Logged in",
			"username": result.User.Username,
		})
	default:
		handleError(c, service.ErrSystemError)
	}
}

func (controller *FederatedController) bindHandler(c *gin.Context) {
	var req FederatedBindRequest

	if err := c.BindJSON(&req); err != nil {
		log.Debug().Err(err).Msg("Failed to bind bind request")
		c.JSON(400, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return
	}

	context := middleware.GetRequestContext(c)
	if !context.LoggedIn {
		handleError(c, service.ErrNotLoggedIn)
		return
	}

	link, err := controller.Broker.Bind(c.Request.Context(), context.UserID, req.Provider, req.BindCode)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"status":  200,
		"message": "Identity bound",
		"link":    link,
	})
}

func (controller *FederatedController) unbindHandler(c *gin.Context) {
	context := middleware.GetRequestContext(c)
	if !context.LoggedIn {
		handleError(c, service.ErrNotLoggedIn)
		return
	}

	if err := controller.Broker.Unbind(c.Request.Context(), context.UserID, c.Param("provider")); err != nil {
		handleError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"status":  200,
		"message": "Identity unbound",
	})
}

func (controller *FederatedController) linksHandler(c *gin.Context) {
	context := middleware.GetRequestContext(c)
	if !context.LoggedIn {
		handleError(c, service.ErrNotLoggedIn)
		return
	}

	links, err := controller.Broker.Links(context.UserID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"status": 200,
		"links":  links,
	})
}

func (controller *FederatedController) refreshHandler(c *gin.Context) {
	context := middleware.GetRequestContext(c)
	if !context.LoggedIn {
		handleError(c, service.ErrNotLoggedIn)
		return
	}

	fresh, err := controller.Broker.RefreshProviderToken(c.Request.Context(), context.UserID, c.Param("provider"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"status":     200,
		"expires_at": fresh.ExpiresAt,
	})
}
