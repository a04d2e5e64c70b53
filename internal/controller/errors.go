package controller

import (
	"errors"

	"github.com/keygate/passport/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type apiErrorBody struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

var errorCodes = map[error]struct {
	status int
	code   string
}{
	service.ErrClientInvalid:        {401, "invalid_client"},
	service.ErrRedirectMismatch:     {400, "redirect_uri_mismatch"},
	service.ErrCodeInvalid:          {400, "invalid_grant"},
	service.ErrCodeExpired:          {400, "invalid_grant"},
	service.ErrCodeAlreadyUsed:      {400, "invalid_grant"},
	service.ErrTokenInvalid:         {401, "invalid_token"},
	service.ErrScopeDenied:          {400, "invalid_scope"},
	service.ErrProviderStateInvalid: {400, "invalid_state"},
	service.ErrProviderError:        {502, "provider_error"},
	service.ErrProviderUnavailable:  {502, "provider_unavailable"},
	service.ErrForbidden:            {403, "forbidden"},
	service.ErrBusy:                 {429, "busy"},
	service.ErrAccountConflict:      {409, "account_conflict"},
	service.ErrNotLoggedIn:          {401, "not_logged_in"},
}

// handleError maps taxonomy errors onto stable wire codes. Anything outside
// the taxonomy degrades to a generic system error; details stay in the log.
func handleError(c *gin.Context, err error) {
	for sentinel, mapping := range errorCodes {
		if errors.Is(err, sentinel) {
			c.JSON(mapping.status, apiErrorBody{Status: mapping.status, Error: mapping.code})
			return
		}
	}

	log.Error().Err(err).Msg("Unhandled error")
	c.JSON(500, apiErrorBody{Status: 500, Error: "system_error"})
}
