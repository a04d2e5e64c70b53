package controller

import (
	"fmt"
	"net/http"
	"time"

	"github.com/keygate/passport/internal/config"
	"github.com/keygate/passport/internal/middleware"
	"github.com/keygate/passport/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/go-querystring/query"
	"github.com/rs/zerolog/log"
)

type AuthorizeRequest struct {
	ClientKey   string `form:"client_key" binding:"required"`
	RedirectURI string `form:"redirect_uri" binding:"required"`
	Scope       string `form:"scope"`
	State       string `form:"state"`
}

type TokenRequest struct {
	GrantType    string `form:"grant_type" binding:"required"`
	Code         string `form:"code"`
	RedirectURI  string `form:"redirect_uri"`
	RefreshToken string `form:"refresh_token"`
	Scope        string `form:"scope"`
	ClientKey    string `form:"client_key" binding:"required"`
	ClientSecret string `form:"client_secret" binding:"required"`
}

type RevokeRequest struct {
	Token         string `form:"token" binding:"required"`
	TokenTypeHint string `form:"token_type_hint"`
	ClientKey     string `form:"client_key" binding:"required"`
	ClientSecret  string `form:"client_secret" binding:"required"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

type OAuthControllerConfig struct {
	LoginURL string
}

type OAuthController struct {
	Config    OAuthControllerConfig
	Router    *gin.RouterGroup
	Clients   *service.ClientService
	AuthCodes *service.AuthCodeService
	Tokens    *service.TokenService
	SSO       *service.SSOService
}

func NewOAuthController(config OAuthControllerConfig, router *gin.RouterGroup, clients *service.ClientService, authCodes *service.AuthCodeService, tokens *service.TokenService, sso *service.SSOService) *OAuthController {
	return &OAuthController{
		Config:    config,
		Router:    router,
		Clients:   clients,
		AuthCodes: authCodes,
		Tokens:    tokens,
		SSO:       sso,
	}
}

func (controller *OAuthController) SetupRoutes() {
	oauthGroup := controller.Router.Group("/oauth")
	oauthGroup.GET("/authorize", controller.authorizeHandler)
	oauthGroup.POST("/token", controller.tokenHandler)
	oauthGroup.POST("/revoke", controller.revokeHandler)
}

func requestMeta(c *gin.Context) service.RequestMeta {
	return service.RequestMeta{
		ClientIP:   c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		RequestURL: c.Request.URL.Path,
	}
}

func (controller *OAuthController) authorizeHandler(c *gin.Context) {
	var req AuthorizeRequest

	if err := c.BindQuery(&req); err != nil {
		log.Debug().Err(err).Msg("Failed to bind authorize query")
		c.JSON(400, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return
	}

	client, err := controller.Clients.GetClient(req.ClientKey)
	if err != nil {
		handleError(c, err)
		return
	}

	if err := controller.Clients.ValidateRedirectURI(client, req.RedirectURI); err != nil {
		handleError(c, err)
		return
	}

	context := middleware.GetRequestContext(c)
	if !context.LoggedIn {
		c.JSON(200, gin.H{
			"status":     200,
			"need_login": true,
			"login_url":  controller.Config.LoginURL,
		})
		return
	}

	code, err := controller.AuthCodes.Issue(c.Request.Context(), client, context.UserID, req.RedirectURI, req.Scope, req.State)
	if err != nil {
		handleError(c, err)
		return
	}

	queries, err := query.Values(config.CallbackQuery{
		Code:  code,
		State: req.State,
	})
	if err != nil {
		handleError(c, service.ErrSystemError)
		return
	}

	c.Redirect(http.StatusFound, fmt.Sprintf("%s?%s", req.RedirectURI, queries.Encode()))
}

func (controller *OAuthController) tokenHandler(c *gin.Context) {
	var req TokenRequest

	if err := c.Bind(&req); err != nil {
		log.Debug().Err(err).Msg("Failed to bind token request")
		c.JSON(400, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return
	}

	client, err := controller.Clients.Authenticate(req.ClientKey, req.ClientSecret)
	if err != nil {
		handleError(c, err)
		return
	}

	if err := controller.Clients.ValidateGrantType(client, req.GrantType); err != nil {
		handleError(c, err)
		return
	}

	meta := requestMeta(c)

	switch req.GrantType {
	case "authorization_code":
		pair, scope, err := controller.AuthCodes.Exchange(c.Request.Context(), req.Code, req.RedirectURI, client, meta)
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(200, controller.pairResponse(pair, scope))
	case "refresh_token":
		pair, err := controller.Tokens.Refresh(c.Request.Context(), req.RefreshToken, client, meta)
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(200, controller.pairResponse(pair, pair.AccessToken.Scope))
	case "client_credentials":
		if err := controller.Clients.ValidateScope(client, req.Scope); err != nil {
			handleError(c, err)
			return
		}
		access, err := controller.Tokens.IssueClientToken(c.Request.Context(), client, req.Scope, meta)
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(200, TokenResponse{
			AccessToken: access.Token,
			TokenType:   "Bearer",
			ExpiresIn:   access.ExpiresAt - time.Now().Unix(),
			Scope:       access.Scope,
		})
	default:
		c.JSON(400, apiErrorBody{Status: 400, Error: "unsupported_grant_type"})
	}
}

func (controller *OAuthController) pairResponse(pair *service.TokenPair, scope string) TokenResponse {
	return TokenResponse{
		AccessToken:  pair.AccessToken.Token,
		TokenType:    "Bearer",
		ExpiresIn:    pair.AccessToken.ExpiresAt - time.Now().Unix(),
		RefreshToken: pair.RefreshToken.Token,
		Scope:        scope,
	}
}

// revokeHandler succeeds even when the token never existed; only client
// authentication failures are surfaced.
func (controller *OAuthController) revokeHandler(c *gin.Context) {
	var req RevokeRequest

	if err := c.Bind(&req); err != nil {
		log.Debug().Err(err).Msg("Failed to bind revoke request")
		c.JSON(400, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return
	}

	client, err := controller.Clients.Authenticate(req.ClientKey, req.ClientSecret)
	if err != nil {
		handleError(c, err)
		return
	}

	if err := controller.Tokens.Revoke(c.Request.Context(), req.Token, req.TokenTypeHint, client, requestMeta(c)); err != nil {
		handleError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"status":  200,
		"message": "OK",
	})
}
