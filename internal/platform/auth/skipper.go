package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication. The reference data endpoints are public
// so the wizard can load its options before the user signs in.
var publicPaths = map[string]bool{
	"/health":                true,
	"/health/db":             true,
	"/api/v1/catalog":        true,
	"/api/v1/relationships":  true,
	"/api/v1/timeslots":      true,
	"/api/v1/bookings/quote": true,
}

// AuthSkipper returns true for requests whose path should skip authentication.
func AuthSkipper(c echo.Context) bool {
	path := c.Path()
	if path == "" {
		path = c.Request().URL.Path
	}
	return IsPublicPath(path)
}

// IsPublicPath reports whether path is served without credentials.
func IsPublicPath(path string) bool {
	return publicPaths[strings.TrimSuffix(path, "/")]
}
