package report

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/inventory"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleClinicAdmin, auth.RoleClinicUser))
	read.GET("/reports/consumption", h.Consumption)
	read.GET("/reports/patients/:code/consumption", h.PatientConsumption)
	read.GET("/reports/stock-value", h.StockValue)
}

// period reads ?from= and ?to=; a missing bound stays zero.
func period(c echo.Context) (from, to time.Time, err error) {
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"from", &from}, {"to", &to}} {
		v := c.QueryParam(p.key)
		if v == "" {
			continue
		}
		if *p.dst, err = inventory.ParseDate(v); err != nil {
			return from, to, echo.NewHTTPError(http.StatusBadRequest, "invalid "+p.key)
		}
	}
	return from, to, nil
}

func (h *Handler) Consumption(c echo.Context) error {
	from, to, err := period(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Consumption(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) PatientConsumption(c echo.Context) error {
	from, to, err := period(c)
	if err != nil {
		return err
	}
	r, err := h.svc.PatientConsumption(c.Request().Context(), c.Param("code"), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) StockValue(c echo.Context) error {
	r, err := h.svc.StockValue(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}
