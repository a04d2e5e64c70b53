package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Probe endpoints are logged at debug so they do not drown the flows that
// matter here.
var quietPaths = map[string]bool{
	"/api/health":  true,
	"/favicon.ico": true,
}

type ZerologMiddleware struct{}

func NewZerologMiddleware() *ZerologMiddleware {
	return &ZerologMiddleware{}
}

func (m *ZerologMiddleware) Init() error {
	return nil
}

// Middleware logs every request with the resolved caller identity attached.
// Redirects stay at info because the authorize flows complete with a 302.
func (m *ZerologMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tStart := time.Now()

		c.Next()

		status := c.Writer.Status()

		var event *zerolog.Event
		switch {
		case quietPaths[c.Request.URL.Path]:
			event = log.Debug()
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		default:
			event = log.Info()
		}

		event = event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("clientIp", c.ClientIP()).
			Int("status", status).
			Dur("latency", time.Since(tStart))

		context := GetRequestContext(c)
		if context.LoggedIn {
			event = event.Int64("userId", context.UserID)
		}
		if context.ClientKey != "" {
			event = event.Str("clientKey", context.ClientKey)
		}

		event.Msg("Request")
	}
}
