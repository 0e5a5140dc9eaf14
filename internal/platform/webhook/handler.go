package webhook

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/surveillance/pkg/pagination"
)

// Handler exposes endpoint management. Every route is administrative.
type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

func (h *Handler) RegisterRoutes(g *echo.Group, admin ...echo.MiddlewareFunc) {
	wg := g.Group("/webhooks", admin...)
	wg.POST("", h.handleRegister)
	wg.GET("", h.handleList)
	wg.GET("/:id", h.handleGet)
	wg.DELETE("/:id", h.handleDelete)
	wg.POST("/:id/status", h.handleStatus)
	wg.POST("/:id/ping", h.handlePing)
	wg.GET("/:id/deliveries", h.handleDeliveries)
	wg.POST("/deliveries/:id/retry", h.handleRetry)
}

func httpError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Message)
	case errors.Is(err, ErrEndpointNotFound), errors.Is(err, ErrDeliveryNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

type registerRequest struct {
	URL         string   `json:"url"`
	Secret      string   `json:"secret"`
	Description string   `json:"description"`
	Channels    []string `json:"channels"`
}

func (h *Handler) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ep, err := h.manager.Register(c.Request().Context(), req.URL, req.Secret, req.Description, req.Channels)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, ep)
}

func (h *Handler) handleList(c echo.Context) error {
	eps, err := h.manager.store.ListEndpoints(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	p := pagination.FromContext(c)
	start, end := p.Window(len(eps))
	page := make([]Endpoint, 0, end-start)
	for _, ep := range eps[start:end] {
		page = append(page, ep.redacted())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(page, len(eps), p.Limit, p.Offset))
}

func (h *Handler) handleGet(c echo.Context) error {
	ep, err := h.manager.store.GetEndpoint(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ep.redacted())
}

func (h *Handler) handleDelete(c echo.Context) error {
	if err := h.manager.store.DeleteEndpoint(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) handleStatus(c echo.Context) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ep, err := h.manager.SetStatus(c.Request().Context(), c.Param("id"), req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ep.redacted())
}

func (h *Handler) handlePing(c echo.Context) error {
	d, err := h.manager.Ping(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) handleDeliveries(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := h.manager.store.GetEndpoint(ctx, c.Param("id")); err != nil {
		return httpError(err)
	}
	ds, err := h.manager.store.ListDeliveries(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	p := pagination.FromContext(c)
	start, end := p.Window(len(ds))
	return c.JSON(http.StatusOK, pagination.NewResponse(ds[start:end], len(ds), p.Limit, p.Offset))
}

func (h *Handler) handleRetry(c echo.Context) error {
	d, err := h.manager.Retry(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}
