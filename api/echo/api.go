//nolint:varnamelen
package echo

import (
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/shadow-social/domain"
	"github.com/pilab-dev/shadow-social/services"
)

// SessionCookieName carries the handshake session id between the sign-in
// redirect and the provider callback.
const SessionCookieName = "social_session"

// SocialAPI struct to hold dependencies.
type SocialAPI struct {
	settings  *services.ProviderSettings
	signIn    *services.SignIn
	directory *services.ConnectionDirectory
	sync      *services.ProfileSync

	sessionTTL   time.Duration
	secureCookie bool
}

// NewSocialAPI initializes the federation API.
func NewSocialAPI(
	settings *services.ProviderSettings,
	signIn *services.SignIn,
	directory *services.ConnectionDirectory,
	sync *services.ProfileSync,
	sessionTTL time.Duration,
	secureCookie bool,
) *SocialAPI {
	return &SocialAPI{
		settings:     settings,
		signIn:       signIn,
		directory:    directory,
		sync:         sync,
		sessionTTL:   sessionTTL,
		secureCookie: secureCookie,
	}
}

// RegisterRoutes registers the federation routes. Admin routes are guarded by
// adminAuth, the caller's own routes by userAuth; both may be nil.
func (a *SocialAPI) RegisterRoutes(e *echo.Echo, adminAuth, userAuth echo.MiddlewareFunc) {
	admin := e.Group("/sso/admin/providers", optional(adminAuth))
	admin.GET("", a.ListProvidersHandler)
	admin.GET("/:providerId", a.GetProviderHandler)
	admin.PUT("/:providerId", a.SaveProviderHandler)
	admin.DELETE("/:providerId", a.DeleteProviderHandler)
	admin.GET("/:providerId/attributes", a.ProviderAttributesHandler)

	e.GET("/sso/signin/:providerId", a.SignInHandler)
	e.GET("/sso/signin/:providerId/callback", a.CallbackHandler)

	me := e.Group("/sso/me", optional(userAuth))
	me.GET("/connections", a.ListConnectionsHandler)
	me.DELETE("/connections/:providerId", a.RemoveConnectionHandler)
	me.POST("/:providerId/synchronize", a.SynchronizeHandler)
}

func optional(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	if mw == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return mw
}

// SaveProviderRequest is the body of PUT /sso/admin/providers/:providerId.
type SaveProviderRequest struct {
	Attributes map[string]string `json:"attributes"`
}

// ProviderResponse hides attribute values; secrets never leave the server.
type ProviderResponse struct {
	ProviderID string    `json:"provider_id"`
	Attributes []string  `json:"attributes"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toProviderResponse(cfg *domain.ProviderConfig) ProviderResponse {
	names := make([]string, 0, len(cfg.Attributes))
	for name := range cfg.Attributes {
		names = append(names, name)
	}
	slices.Sort(names)
	return ProviderResponse{
		ProviderID: cfg.ProviderID,
		Attributes: names,
		CreatedAt:  cfg.CreatedAt,
		UpdatedAt:  cfg.UpdatedAt,
	}
}

func (a *SocialAPI) ListProvidersHandler(c echo.Context) error {
	configs, err := a.settings.List(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]ProviderResponse, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, toProviderResponse(cfg))
	}
	return c.JSON(http.StatusOK, out)
}

func (a *SocialAPI) GetProviderHandler(c echo.Context) error {
	cfg, err := a.settings.Get(c.Request().Context(), c.Param("providerId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toProviderResponse(cfg))
}

func (a *SocialAPI) SaveProviderHandler(c echo.Context) error {
	var req SaveProviderRequest
	if err := c.Bind(&req); err != nil {
		return NewError(http.StatusBadRequest, "invalid_request", "Malformed request body")
	}

	cfg, err := a.settings.Save(c.Request().Context(), c.Param("providerId"), req.Attributes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toProviderResponse(cfg))
}

func (a *SocialAPI) DeleteProviderHandler(c echo.Context) error {
	if err := a.settings.Delete(c.Request().Context(), c.Param("providerId")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *SocialAPI) ProviderAttributesHandler(c echo.Context) error {
	attrs, err := a.settings.Attributes(c.Param("providerId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, attrs)
}

// SignInHandler starts the OAuth handshake and redirects to the provider.
func (a *SocialAPI) SignInHandler(c echo.Context) error {
	sessionID := a.sessionID(c)

	authURL, err := a.signIn.Begin(c.Request().Context(), sessionID, c.Param("providerId"))
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, authURL)
}

// SignInResponse is returned once the callback resolved the local user.
type SignInResponse struct {
	UserID     string `json:"user_id"`
	ProviderID string `json:"provider_id"`
}

// CallbackHandler finishes the handshake started by SignInHandler.
func (a *SocialAPI) CallbackHandler(c echo.Context) error {
	if providerErr := c.QueryParam("error"); providerErr != "" {
		return NewError(http.StatusBadRequest, providerErr, c.QueryParam("error_description"))
	}

	cookie, err := c.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return NewError(http.StatusBadRequest, "invalid_request", "Missing sign-in session")
	}
	code := c.QueryParam("code")
	if code == "" {
		return NewError(http.StatusBadRequest, "invalid_request", "Missing authorization code")
	}

	providerID := c.Param("providerId")
	userID, err := a.signIn.Exchange(c.Request().Context(), cookie.Value, providerID, code, c.QueryParam("state"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SignInResponse{UserID: userID, ProviderID: providerID})
}

func (a *SocialAPI) ListConnectionsHandler(c echo.Context) error {
	store, err := a.callerStore(c)
	if err != nil {
		return err
	}
	groups, err := store.ListAll(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, groups)
}

// RemoveConnectionHandler removes every connection at the provider, or only
// the one named by the providerUserId query parameter.
func (a *SocialAPI) RemoveConnectionHandler(c echo.Context) error {
	store, err := a.callerStore(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	providerID := c.Param("providerId")
	if providerUserID := c.QueryParam("providerUserId"); providerUserID != "" {
		err = store.RemoveByKey(ctx, domain.ConnectionKey{ProviderID: providerID, ProviderUserID: providerUserID})
	} else {
		err = store.RemoveByProvider(ctx, providerID)
	}
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *SocialAPI) SynchronizeHandler(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := domain.UserIDFromContext(ctx)
	if !ok {
		return NewError(http.StatusUnauthorized, "unauthorized", "Authentication required")
	}

	user, err := a.sync.Synchronize(ctx, userID, c.Param("providerId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

func (a *SocialAPI) callerStore(c echo.Context) (*services.ConnectionStore, error) {
	userID, ok := domain.UserIDFromContext(c.Request().Context())
	if !ok {
		return nil, NewError(http.StatusUnauthorized, "unauthorized", "Authentication required")
	}
	return a.directory.ScopeTo(userID)
}

// sessionID returns the handshake session of the request, issuing a new
// session cookie when there is none.
func (a *SocialAPI) sessionID(c echo.Context) string {
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	id := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/sso/signin",
		MaxAge:   int(a.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
