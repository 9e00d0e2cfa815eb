package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/shadow-social/domain"
	"github.com/pilab-dev/shadow-social/internal/federation"
	"github.com/rs/zerolog/log"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`

	status int
}

func (e *ErrorResponse) Error() string { return e.Code + ": " + e.Description }

// NewError builds an ErrorResponse handlers can return directly.
func NewError(status int, code, description string) *ErrorResponse {
	return &ErrorResponse{Code: code, Description: description, status: status}
}

var errorKinds = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrUnsupportedProvider, http.StatusNotFound, "unsupported_provider"},
	{domain.ErrConfigurationNotFound, http.StatusNotFound, "provider_not_configured"},
	{domain.ErrNotConnected, http.StatusNotFound, "not_connected"},
	{domain.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{domain.ErrMissingAttribute, http.StatusBadRequest, "missing_attribute"},
	{domain.ErrUnknownAttribute, http.StatusBadRequest, "unknown_attribute"},
	{domain.ErrInvalidState, http.StatusBadRequest, "invalid_state"},
	{domain.ErrInvalidAttributeName, http.StatusBadRequest, "invalid_request"},
	{domain.ErrEmptyKeys, http.StatusBadRequest, "invalid_request"},
	{domain.ErrInvalidUserID, http.StatusUnauthorized, "unauthorized"},
	{domain.ErrDuplicateConnection, http.StatusConflict, "duplicate_connection"},
	{domain.ErrLoginConflict, http.StatusConflict, "login_conflict"},
	{domain.ErrDuplicateLogin, http.StatusConflict, "login_conflict"},
	{domain.ErrDuplicateEmail, http.StatusConflict, "duplicate_email"},
	{domain.ErrAmbiguousOwner, http.StatusConflict, "ambiguous_owner"},
	{domain.ErrWrongProviderType, http.StatusConflict, "wrong_provider_type"},
	{domain.ErrEmailRequired, http.StatusUnprocessableEntity, "email_required"},
	{federation.ErrOrganizationNotAllowed, http.StatusForbidden, "organization_not_allowed"},
	{federation.ErrFetchUserInfoFailed, http.StatusBadGateway, "provider_unavailable"},
	{federation.ErrProviderMisconfigured, http.StatusServiceUnavailable, "provider_misconfigured"},
}

// toErrorResponse maps an error kind to its status and JSON body.
func toErrorResponse(err error) *ErrorResponse {
	var resp *ErrorResponse
	if errors.As(err, &resp) {
		return resp
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		desc, _ := httpErr.Message.(string)
		return NewError(httpErr.Code, http.StatusText(httpErr.Code), desc)
	}

	for _, kind := range errorKinds {
		if errors.Is(err, kind.err) {
			return NewError(kind.status, kind.code, err.Error())
		}
	}
	return NewError(http.StatusInternalServerError, "server_error", "Internal server error")
}

// ErrorHandler replaces echo's default error handler.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	resp := toErrorResponse(err)
	event := log.Warn()
	if resp.status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Ctx(c.Request().Context()).Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Int("status", resp.status).
		Msg("Request failed")

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(resp.status)
	} else {
		err = c.JSON(resp.status, resp)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to write error response")
	}
}
