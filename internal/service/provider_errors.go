package service

import (
	"context"
	"errors"
	"net"

	"golang.org/x/oauth2"

	"github.com/rs/zerolog/log"
)

// mapProviderError folds provider failures into the fixed taxonomy. Raw
// provider error text is logged, never returned to a caller.
func mapProviderError(err error) error {
	if err == nil {
		return nil
	}

	log.Debug().Err(err).Msg("Provider error")

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrProviderUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrProviderUnavailable
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch retrieveErr.ErrorCode {
		case "invalid_grant", "bad_verification_code":
			return ErrCodeInvalid
		case "invalid_token", "expired_token":
			return ErrTokenInvalid
		case "unauthorized_client", "access_denied":
			return ErrForbidden
		case "slow_down", "temporarily_unavailable":
			return ErrBusy
		}
		return ErrProviderError
	}

	return ErrProviderError
}

// mapWechatError translates WeChat numeric errcodes into the taxonomy.
func mapWechatError(errcode int) error {
	switch errcode {
	case 0:
		return nil
	case 40029: // invalid code
		return ErrCodeInvalid
	case 40001, 40014, 42001: // invalid or expired access_token
		return ErrTokenInvalid
	case 40030, 42002: // invalid or expired refresh_token
		return ErrTokenInvalid
	case 48001, 50001, 50002: // api unauthorized
		return ErrForbidden
	case 45009, 45011: // rate limited
		return ErrBusy
	default:
		return ErrProviderError
	}
}
