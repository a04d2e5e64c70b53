package controller

import (
	"github.com/keygate/passport/internal/middleware"
	"github.com/keygate/passport/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type SSOLoginRequest struct {
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	ClientKey string `json:"client_key"`
}

type SSOTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type SSOLogoutRequest struct {
	ClientKey string `json:"client_key"`
	Global    bool   `json:"global"`
}

type SSOControllerConfig struct {
	SessionCookieName string
	SecureCookie      bool
	Domain            string
	SessionExpiry     int
}

type SSOController struct {
	Config SSOControllerConfig
	Router *gin.RouterGroup
	SSO    *service.SSOService
}

func NewSSOController(config SSOControllerConfig, router *gin.RouterGroup, sso *service.SSOService) *SSOController {
	return &SSOController{
		Config: config,
		Router: router,
		SSO:    sso,
	}
}

func (controller *SSOController) SetupRoutes() {
	ssoGroup := controller.Router.Group("/sso")
	ssoGroup.POST("/login", controller.loginHandler)
	ssoGroup.GET("/authorize", controller.authorizeHandler)
	ssoGroup.GET("/status", controller.statusHandler)
	ssoGroup.POST("/validate", controller.validateHandler)
	ssoGroup.POST("/refresh", controller.refreshHandler)
	ssoGroup.POST("/logout", controller.logoutHandler)
}

func (controller *SSOController) setSessionCookie(c *gin.Context, sessionID string) {
	c.SetCookie(controller.Config.SessionCookieName, sessionID, controller.Config.SessionExpiry, "/", controller.Config.Domain, controller.Config.SecureCookie, true)
}

func (controller *SSOController) clearSessionCookie(c *gin.Context) {
	c.SetCookie(controller.Config.SessionCookieName, "", -1, "/", controller.Config.Domain, controller.Config.SecureCookie, true)
}

func (controller *SSOController) loginHandler(c *gin.Context) {
	var req SSOLoginRequest

	if err := c.BindJSON(&req); err != nil {
		log.Debug().Err(err).Msg("Failed to bind login request")
		c.JSON(400, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return
	}

	session, token, err := controller.SSO.Login(c.Request.Context(), req.Username, req.Password, req.ClientKey)
	if err != nil {
		handleError(c, err)
		return
	}

	controller.setSessionCookie(c, session.ID)

	c.JSON(200, gin.H{
		"status":  200,
		"message": "Logged in",
		"token":   token,
	})
}

// authorizeHandler is the browser entrypoint for a relying client. An
// authenticated session yields a fresh SSO token for the client, otherwise
// the response points at the login page.
func (controller *SSOController) authorizeHandler(c *gin.Context) {
	clientKey := c.Query("client_key")
	if clientKey == "" {
		c.JSON(400, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return
	}

	context := middleware.GetRequestContext(c)

	info, err := controller.SSO.GetLoginInfo(c.Request.Context(), context.SessionID, clientKey)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(200, info)
}

func (controller *SSOController) statusHandler(c *gin.Context) {
	context := middleware.GetRequestContext(c)

	status, err := controller.SSO.CheckStatus(c.Request.Context(), context.SessionID, c.Query("client_key"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(200, status)
}

func (controller *SSOController) validateHandler(c *gin.Context) {
	var req SSOTokenRequest

	if err := c.BindJSON(&req); err != nil {
		log.Debug().Err(err).Msg("Failed to bind validate request")
		c.JSON(400, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return
	}

	record, err := controller.SSO.ValidateToken(c.Request.Context(), req.Token, requestMeta(c))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"status":     200,
		"valid":      true,
		"user_id":    record.UserID,
		"client_key": record.ClientKey,
		"expires_at": record.ExpiresAt,
	})
}

func (controller *SSOController) refreshHandler(c *gin.Context) {
	var req SSOTokenRequest

	if err := c.BindJSON(&req); err != nil {
		log.Debug().Err(err).Msg("Failed to bind refresh request")
		c.JSON(400, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return
	}

	fresh, err := controller.SSO.RefreshToken(c.Request.Context(), req.Token, requestMeta(c))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"status": 200,
		"token":  fresh,
	})
}

// logoutHandler handles both shapes: a client_key logs out that client
// only, global tears down the session and every binding.
func (controller *SSOController) logoutHandler(c *gin.Context) {
	var req SSOLogoutRequest

	if err := c.BindJSON(&req); err != nil {
		log.Debug().Err(err).Msg("Failed to bind logout request")
		c.JSON(400, gin.H{
			"status":  400,
			"message": "Bad Request",
		})
		return
	}

	context := middleware.GetRequestContext(c)

	if req.Global || req.ClientKey == "" {
		if err := controller.SSO.LogoutGlobal(c.Request.Context(), context.SessionID, requestMeta(c)); err != nil {
			handleError(c, err)
			return
		}
		controller.clearSessionCookie(c)
	} else {
		if err := controller.SSO.LogoutClient(c.Request.Context(), context.SessionID, req.ClientKey); err != nil {
			handleError(c, err)
			return
		}
	}

	c.JSON(200, gin.H{
		"status":  200,
		"message": "Logged out",
	})
}
