package middleware

import (
	"strings"

	"github.com/keygate/passport/internal/config"
	"github.com/keygate/passport/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type ContextMiddlewareConfig struct {
	SessionCookieName string
}

// ContextMiddleware resolves the caller identity for downstream handlers.
// Bearer access tokens are checked against the revocation list before being
// trusted; the SSO session cookie is the browser path.
type ContextMiddleware struct {
	Config ContextMiddlewareConfig
	SSO    *service.SSOService
	Tokens *service.TokenService
}

func NewContextMiddleware(config ContextMiddlewareConfig, sso *service.SSOService, tokens *service.TokenService) *ContextMiddleware {
	return &ContextMiddleware{
		Config: config,
		SSO:    sso,
		Tokens: tokens,
	}
}

func (m *ContextMiddleware) Init() error {
	if m.Config.SessionCookieName == "" {
		m.Config.SessionCookieName = config.SessionCookieName
	}
	return nil
}

type RequestContext struct {
	LoggedIn  bool
	UserID    int64
	SessionID string
	ClientKey string
}

func (m *ContextMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		context := RequestContext{}

		meta := service.RequestMeta{
			ClientIP:   c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			RequestURL: c.Request.URL.Path,
		}

		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token := strings.TrimPrefix(header, "Bearer ")
			record, err := m.Tokens.ValidateAccess(c.Request.Context(), token, meta)
			if err == nil {
				context.LoggedIn = record.UserID != 0
				context.UserID = record.UserID
				context.ClientKey = record.ClientKey
				c.Set("context", &context)
				c.Next()
				return
			}
			log.Debug().Err(err).Msg("Rejected bearer token")
		}

		if sessionID, err := c.Cookie(m.Config.SessionCookieName); err == nil && sessionID != "" {
			session, err := m.SSO.GetSession(c.Request.Context(), sessionID)
			if err == nil {
				context.LoggedIn = true
				context.UserID = session.UserID
				context.SessionID = sessionID
			}
		}

		c.Set("context", &context)
		c.Next()
	}
}

// GetRequestContext returns the resolved caller identity, empty when the
// middleware did not run.
func GetRequestContext(c *gin.Context) *RequestContext {
	value, exists := c.Get("context")
	if !exists {
		return &RequestContext{}
	}
	context, ok := value.(*RequestContext)
	if !ok {
		return &RequestContext{}
	}
	return context
}
