package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	GatewayErrorBadInput            = "GATEWAY_BAD_INPUT"
	GatewayErrorPluginUnknown       = "GATEWAY_PLUGIN_UNKNOWN"
	GatewayErrorPluginNotConfigured = "GATEWAY_PLUGIN_NOT_CONFIGURED"
	GatewayErrorConnectionNotFound  = "GATEWAY_CONNECTION_NOT_FOUND"
	GatewayErrorStateInvalid        = "GATEWAY_STATE_INVALID"
	GatewayErrorPKCEInvalid         = "GATEWAY_PKCE_INVALID"
	GatewayErrorSignatureInvalid    = "GATEWAY_SIGNATURE_INVALID"
	GatewayErrorExchangeFailed      = "GATEWAY_EXCHANGE_FAILED"
	GatewayErrorInstallFailed       = "GATEWAY_INSTALL_FAILED"
	GatewayErrorUpstream            = "GATEWAY_UPSTREAM_ERROR"
	GatewayErrorInternal            = "GATEWAY_INTERNAL_ERROR"
)

// GatewayErrorMapper normalizes arbitrary errors into the go-errors envelope
// used by the HTTP layer. Already-enveloped errors pass through with their
// category, code, and text code preserved.
func GatewayErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureGatewayErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "plugin") && strings.Contains(msg, "not registered"):
		return newGatewayError(err.Error(), goerrors.CategoryNotFound, GatewayErrorPluginUnknown)
	case strings.Contains(msg, "plugin") && strings.Contains(msg, "not configured"):
		return newGatewayError(err.Error(), goerrors.CategoryNotFound, GatewayErrorPluginNotConfigured)
	case strings.Contains(msg, "connection") && strings.Contains(msg, "not found"):
		return newGatewayError(err.Error(), goerrors.CategoryNotFound, GatewayErrorConnectionNotFound)
	case strings.Contains(msg, "oauth state"):
		return newGatewayError(err.Error(), goerrors.CategoryValidation, GatewayErrorStateInvalid)
	case strings.Contains(msg, "code verifier"), strings.Contains(msg, "pkce"):
		return newGatewayError(err.Error(), goerrors.CategoryValidation, GatewayErrorPKCEInvalid)
	case strings.Contains(msg, "signature"):
		return newGatewayError(err.Error(), goerrors.CategoryAuthz, GatewayErrorSignatureInvalid)
	case strings.Contains(msg, "token exchange"), strings.Contains(msg, "token refresh"):
		return newGatewayError(err.Error(), goerrors.CategoryExternal, GatewayErrorExchangeFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newGatewayError(err.Error(), goerrors.CategoryBadInput, GatewayErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureGatewayErrorEnvelope(mapped)
}

func newGatewayError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureGatewayErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureGatewayErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = GatewayHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultGatewayTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultGatewayTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return GatewayErrorBadInput
	case goerrors.CategoryNotFound:
		return GatewayErrorPluginUnknown
	case goerrors.CategoryAuth:
		return GatewayErrorStateInvalid
	case goerrors.CategoryAuthz:
		return GatewayErrorSignatureInvalid
	case goerrors.CategoryExternal:
		return GatewayErrorUpstream
	default:
		return GatewayErrorInternal
	}
}

// GatewayHTTPStatus collapses error categories onto the response codes the
// HTTP surface exposes: 404 for unknown plugins and connections, 400/401/403
// for caller faults, 500 for upstream and internal failures.
func GatewayHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
