package observation

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/surveillance/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/hospitals", h.ListHospitals)
	api.GET("/observations", h.ListObservations)
	api.GET("/observations/:id", h.GetObservation)
	api.POST("/observations", h.CreateObservation)
}

// ListHospitals returns the options of the observation entry form.
func (h *Handler) ListHospitals(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"hospitals":  Hospitals,
		"occasions":  Occasions,
		"map_center": MapCenter,
	})
}

func (h *Handler) CreateObservation(c echo.Context) error {
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := h.svc.Record(c.Request().Context(), in)
	if err != nil {
		return HTTPError(err)
	}
	c.Response().Header().Set("Location", "/api/v1/observations/"+o.ID.String())
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetObservation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	o, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListObservations(c echo.Context) error {
	f, err := FilterFromQuery(c)
	if err != nil {
		return HTTPError(err)
	}
	items, err := h.svc.Query(c.Request().Context(), f)
	if err != nil {
		return HTTPError(err)
	}
	pg := pagination.FromContext(c)
	start, end := pg.Window(len(items))
	page := items[start:end]
	if page == nil {
		page = []*Observation{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(page, len(items), pg.Limit, pg.Offset))
}

// FilterFromQuery reads start_date, end_date, hospital, occasion and disease
// query parameters.
func FilterFromQuery(c echo.Context) (Filter, error) {
	var f Filter
	if s := strings.TrimSpace(c.QueryParam("start_date")); s != "" {
		d, err := ParseDate(s)
		if err != nil {
			return f, invalid("start_date", "must be a date in YYYY-MM-DD format")
		}
		f.Start = d
	}
	if s := strings.TrimSpace(c.QueryParam("end_date")); s != "" {
		d, err := ParseDate(s)
		if err != nil {
			return f, invalid("end_date", "must be a date in YYYY-MM-DD format")
		}
		f.End = d
	}
	f.Hospital = strings.TrimSpace(c.QueryParam("hospital"))
	f.Occasion = strings.TrimSpace(c.QueryParam("occasion"))
	f.Disease = strings.TrimSpace(c.QueryParam("disease"))
	return f, nil
}
