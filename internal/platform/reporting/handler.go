package reporting

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	catalog  *Catalog
	archiver *Archiver
}

// NewHandler creates a new reporting handler. archiver may be nil.
func NewHandler(catalog *Catalog, archiver *Archiver) *Handler {
	return &Handler{catalog: catalog, archiver: archiver}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/reports", h.ListReports)
	api.GET("/reports/:id", h.ExportReport)
}

// ListReports returns all available report definitions.
func (h *Handler) ListReports(c echo.Context) error {
	return c.JSON(http.StatusOK, h.catalog.Definitions())
}

// ExportReport renders a report as a downloadable artifact.
func (h *Handler) ExportReport(c echo.Context) error {
	id := c.Param("id")
	format, err := ParseFormat(c.QueryParam("format"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	params := map[string]string{}
	for name, values := range c.QueryParams() {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}

	ctx := c.Request().Context()
	art, err := h.catalog.Export(ctx, id, format, params)
	if err != nil {
		switch {
		case errors.Is(err, ErrReportNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "report not found")
		case errors.Is(err, ErrInvalidParameter):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("export failed: %v", err))
		}
	}

	if meta := h.archiver.Archive(ctx, id, format, art); meta != nil {
		c.Response().Header().Set("X-Archive-Id", meta.ID)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, art.FileName))
	return c.Blob(http.StatusOK, art.ContentType, art.Body)
}
