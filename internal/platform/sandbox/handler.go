package sandbox

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/surveillance/internal/domain/observation"
)

// SeedHandler exposes reseeding over HTTP.
type SeedHandler struct {
	seeder *Seeder
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

// RegisterRoutes mounts the admin routes. mw should restrict access to
// administrators.
func (h *SeedHandler) RegisterRoutes(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.POST("/admin/reseed", h.handleReseed, mw...)
	g.GET("/admin/seed/preview", h.handlePreview, mw...)
}

// handleReseed accepts an optional JSON body {"count": N, "seed": S}.
func (h *SeedHandler) handleReseed(c echo.Context) error {
	var cfg SeedConfig
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&cfg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid reseed request body")
		}
	}
	res, err := h.seeder.Reseed(c.Request().Context(), cfg)
	if err != nil {
		return observation.HTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// handlePreview streams generated rows as NDJSON without storing them.
func (h *SeedHandler) handlePreview(c echo.Context) error {
	cfg, err := configFromQuery(c)
	if err != nil {
		return observation.HTTPError(err)
	}
	rows, seed, err := h.seeder.Generate(cfg)
	if err != nil {
		return observation.HTTPError(err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	res.Header().Set("X-Seed", strconv.FormatInt(seed, 10))
	res.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(res)
	for _, o := range rows {
		if err := enc.Encode(o); err != nil {
			return err
		}
	}
	return nil
}

func configFromQuery(c echo.Context) (SeedConfig, error) {
	var cfg SeedConfig
	if s := strings.TrimSpace(c.QueryParam("count")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return cfg, &observation.ValidationError{Field: "count", Message: "must be a whole number"}
		}
		cfg.Count = n
	}
	if s := strings.TrimSpace(c.QueryParam("seed")); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return cfg, &observation.ValidationError{Field: "seed", Message: "must be a whole number"}
		}
		cfg.Seed = n
	}
	return cfg, nil
}
