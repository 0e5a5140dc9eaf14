package surveillance

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/surveillance/internal/domain/observation"
	"github.com/ehr/surveillance/internal/platform/reporting"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the dashboard routes. mw wraps every route, e.g. a
// response cache.
func (h *Handler) RegisterRoutes(api *echo.Group, mw ...echo.MiddlewareFunc) {
	api.GET("/dashboard/summary", h.GetSummary, mw...)
	api.GET("/surveillance", h.GetSurveillance, mw...)
	api.GET("/surveillance/map", h.GetMap, mw...)
	api.GET("/outbreaks", h.GetOutbreaks, mw...)
	api.GET("/predictions", h.GetPredictions, mw...)
	api.GET("/recommendations", h.GetRecommendations)
	api.GET("/charts/admissions.png", h.GetAdmissionsChart, mw...)
	api.GET("/charts/top-diseases.png", h.GetTopDiseasesChart, mw...)
}

func (h *Handler) GetSummary(c echo.Context) error {
	s, err := h.svc.Summary(c.Request().Context())
	if err != nil {
		return observation.HTTPError(err)
	}
	return c.JSON(http.StatusOK, s)
}

// GetSurveillance handles GET /surveillance?hospital=.
func (h *Handler) GetSurveillance(c echo.Context) error {
	v, err := h.svc.Surveillance(c.Request().Context(), strings.TrimSpace(c.QueryParam("hospital")))
	if err != nil {
		return observation.HTTPError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) GetMap(c echo.Context) error {
	m, err := h.svc.Map(c.Request().Context())
	if err != nil {
		return observation.HTTPError(err)
	}
	return c.JSON(http.StatusOK, m)
}

// GetOutbreaks handles GET /outbreaks[?start_date=&end_date=].
func (h *Handler) GetOutbreaks(c echo.Context) error {
	f, err := observation.FilterFromQuery(c)
	if err != nil {
		return observation.HTTPError(err)
	}
	r, err := h.svc.Outbreaks(c.Request().Context(), f.Start, f.End)
	if err != nil {
		return observation.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) GetPredictions(c echo.Context) error {
	p, err := h.svc.Predictions(c.Request().Context())
	if err != nil {
		return observation.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetRecommendations(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"recommendations": Recommendations,
		"generated_at":    time.Now().UTC(),
	})
}

func (h *Handler) GetAdmissionsChart(c echo.Context) error {
	png, err := h.svc.AdmissionsChart(c.Request().Context())
	if err != nil {
		return observation.HTTPError(err)
	}
	return c.Blob(http.StatusOK, reporting.ContentTypePNG, png)
}

func (h *Handler) GetTopDiseasesChart(c echo.Context) error {
	png, err := h.svc.TopDiseasesChart(c.Request().Context())
	if err != nil {
		return observation.HTTPError(err)
	}
	return c.Blob(http.StatusOK, reporting.ContentTypePNG, png)
}
