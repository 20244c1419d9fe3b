package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const TokenIDKey = "token_id"

// Middleware validates the bearer token on admin routes.
func (s *Service) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing Authorization header")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Authorization header format")
		}

		id, err := s.Verify(parts[1])
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		c.Set(TokenIDKey, id)
		return next(c)
	}
}

// TokenIDFromContext returns the id of the token that authorized the request.
func TokenIDFromContext(c echo.Context) (string, error) {
	id, ok := c.Get(TokenIDKey).(string)
	if !ok || id == "" {
		return "", errors.New("token id not found in context")
	}
	return id, nil
}
