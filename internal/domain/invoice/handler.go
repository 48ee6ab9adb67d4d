package invoice

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

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
	read := api.Group("", auth.RequireRole(auth.RoleClinicAdmin, auth.RoleClinicUser))
	read.GET("/invoices", h.List)
	read.GET("/invoices/:id", h.Get)

	write := api.Group("", auth.RequireRole(auth.RoleClinicAdmin))
	write.POST("/invoices", h.Create)
}

type lineRequest struct {
	ProductCode    string          `json:"product_code"`
	ProductName    string          `json:"product_name"`
	Batch          string          `json:"batch"`
	Quantity       int             `json:"quantity"`
	ExpirationDate string          `json:"expiration_date"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

type createRequest struct {
	Number   string        `json:"number"`
	Supplier string        `json:"supplier"`
	IssuedAt string        `json:"issued_at"`
	Lines    []lineRequest `json:"lines"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	issued, err := inventory.ParseDate(req.IssuedAt)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid issued_at")
	}
	inv := &Invoice{Number: req.Number, Supplier: req.Supplier, IssuedAt: issued}
	for _, l := range req.Lines {
		exp, err := inventory.ParseDate(l.ExpirationDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid expiration_date for batch "+l.Batch)
		}
		inv.Lines = append(inv.Lines, Line{
			ProductCode:    l.ProductCode,
			ProductName:    l.ProductName,
			Batch:          l.Batch,
			Quantity:       l.Quantity,
			ExpirationDate: exp,
			UnitPrice:      l.UnitPrice,
		})
	}

	ctx := c.Request().Context()
	if err := h.svc.Create(ctx, inv, auth.ActorFromContext(ctx)); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, inv)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	inv, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := make(map[string]string)
	for _, k := range []string{"number", "supplier"} {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	items, total, err := h.svc.List(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
