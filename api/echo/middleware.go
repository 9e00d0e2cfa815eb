package echo

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pilab-dev/shadow-social/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UserIDHeader is set by the authenticating gateway in front of the service.
const UserIDHeader = "X-Social-User"

// UserFromHeader puts the local user id from header into the request context.
// Requests without it are rejected.
func UserFromHeader(header string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := c.Request().Header.Get(header)
			if userID == "" {
				return NewError(http.StatusUnauthorized, "unauthorized", "Authentication required")
			}
			req := c.Request()
			c.SetRequest(req.WithContext(domain.WithUserID(req.Context(), userID)))
			return next(c)
		}
	}
}

// AdminKeyAuth accepts requests carrying "Authorization: Bearer <token>".
func AdminKeyAuth(token string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:" + echo.HeaderAuthorization,
		Validator: func(key string, _ echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
		ErrorHandler: func(error, echo.Context) error {
			return NewError(http.StatusUnauthorized, "unauthorized", "Invalid admin token")
		},
	})
}

// Forbid rejects every request; it stands in for AdminKeyAuth when no admin
// token is configured.
func Forbid() echo.MiddlewareFunc {
	return func(echo.HandlerFunc) echo.HandlerFunc {
		return func(echo.Context) error {
			return NewError(http.StatusForbidden, "forbidden", "Admin API is disabled")
		}
	}
}

// NewServer returns an echo instance with the service's error handler and
// base middleware, plus /healthz and /metrics.
func NewServer(gatherer prometheus.Gatherer, ping func(*http.Request) error) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/healthz", func(c echo.Context) error {
		if ping != nil {
			if err := ping(c.Request()); err != nil {
				return NewError(http.StatusServiceUnavailable, "unavailable", err.Error())
			}
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return e
}
