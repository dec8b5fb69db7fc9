package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/msvee3/Interview-prep/internal/auth"
)

const tokenKey = "bearerToken"

// newEcho creates a configured Echo instance.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	return e
}

// requireBearer rejects /api requests without a bearer token and stores the
// token for the handlers, which relay it to the backend.
func requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := auth.ExtractBearer(c.Request())
		if err != nil && isWebsocket(c.Request()) {
			// Browsers cannot set headers on a websocket handshake.
			if q := strings.TrimSpace(c.QueryParam("access_token")); q != "" {
				token, err = q, nil
			}
		}
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorBody{Error: err.Error()})
		}
		c.Set(tokenKey, token)
		return next(c)
	}
}

func bearerToken(c echo.Context) string {
	token, _ := c.Get(tokenKey).(string)
	return token
}

func isWebsocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
