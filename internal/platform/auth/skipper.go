package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication. Matched against the route pattern.
var publicPaths = map[string]bool{
	"/health":                 true,
	"/health/db":              true,
	"/api/v1/hospitals":       true,
	"/api/v1/recommendations": true,
	"/api/openapi.json":       true,
	"/api/docs":               true,
}

// AuthSkipper reports whether the matched route is public.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
