package procedure

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/inventory"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/auth"
	"github.com/GScandelari/curva-mestra-system-sub005/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole(auth.RoleClinicAdmin, auth.RoleClinicUser))
	staff.GET("/procedures", h.Search)
	staff.GET("/procedures/stats", h.Stats)
	staff.GET("/procedures/:id", h.Get)
	staff.POST("/procedures", h.Create)

	admin := api.Group("", auth.RequireRole(auth.RoleClinicAdmin))
	admin.POST("/procedures/:id/status", h.UpdateStatus)
}

type productRequest struct {
	ProductCode string `json:"product_code"`
	Quantity    int    `json:"quantity"`
}

type createRequest struct {
	PatientCode  string           `json:"patient_code"`
	PatientName  string           `json:"patient_name"`
	ScheduledFor string           `json:"scheduled_for"`
	Notes        string           `json:"notes"`
	Products     []productRequest `json:"products"`
	Draft        bool             `json:"draft"`
}

type statusRequest struct {
	Status Status `json:"status"`
	Note   string `json:"note"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	date, err := inventory.ParseDate(req.ScheduledFor)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid scheduled_for")
	}
	in := CreateInput{
		PatientCode:  req.PatientCode,
		PatientName:  req.PatientName,
		ScheduledFor: date,
		Notes:        req.Notes,
		Draft:        req.Draft,
	}
	for _, p := range req.Products {
		in.Products = append(in.Products, inventory.Request{ProductCode: p.ProductCode, Quantity: p.Quantity})
	}

	ctx := c.Request().Context()
	p, err := h.svc.Create(ctx, in, auth.ActorFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Search(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := make(map[string]string)
	for _, k := range []string{"status", "patient_code", "from", "to"} {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	for _, k := range []string{"from", "to"} {
		if v, ok := params[k]; ok {
			if _, err := inventory.ParseDate(v); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+k)
			}
		}
	}
	items, total, err := h.svc.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	p, err := h.svc.UpdateStatus(ctx, id, req.Status, req.Note, auth.ActorFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Stats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}
