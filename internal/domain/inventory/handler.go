package inventory

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/auth"
	"github.com/GScandelari/curva-mestra-system-sub005/pkg/pagination"
)

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleClinicAdmin, auth.RoleClinicUser))
	read.GET("/inventory", h.SearchItems)
	read.GET("/inventory/groups", h.ProductGroups)
	read.GET("/inventory/allocate", h.PreviewAllocation)
	read.GET("/inventory/stats", h.Stats)
	read.GET("/inventory/expiring", h.Expiring)
	read.GET("/inventory/activity", h.RecentActivity)
	read.GET("/inventory/:id", h.GetItem)

	write := api.Group("", auth.RequireRole(auth.RoleClinicAdmin))
	write.POST("/inventory", h.CreateItem)
	write.PUT("/inventory/:id", h.UpdateItem)
	write.POST("/inventory/:id/adjust", h.AdjustItem)
	write.DELETE("/inventory/:id", h.DeactivateItem)
}

type createItemRequest struct {
	ProductCode    string          `json:"product_code"`
	ProductName    string          `json:"product_name"`
	Batch          string          `json:"batch"`
	Quantity       int             `json:"quantity"`
	ExpirationDate string          `json:"expiration_date"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

type updateItemRequest struct {
	ProductName    *string          `json:"product_name"`
	Batch          *string          `json:"batch"`
	ExpirationDate *string          `json:"expiration_date"`
	UnitPrice      *decimal.Decimal `json:"unit_price"`
}

type adjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

func (h *Handler) CreateItem(c echo.Context) error {
	var req createItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	exp, err := ParseDate(req.ExpirationDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid expiration_date")
	}
	it := &Item{
		ProductCode:    req.ProductCode,
		ProductName:    req.ProductName,
		Batch:          req.Batch,
		QuantityOnHand: req.Quantity,
		ExpirationDate: exp,
		UnitPrice:      req.UnitPrice,
	}
	ctx := c.Request().Context()
	if err := h.svc.ReceiveItem(ctx, it, auth.ActorFromContext(ctx)); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, it)
}

func (h *Handler) GetItem(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	it, err := h.svc.GetItem(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, it)
}

func (h *Handler) SearchItems(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := make(map[string]string)
	for _, k := range []string{"product_code", "batch", "active", "available"} {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	items, total, err := h.svc.SearchItems(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateItem(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req updateItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	upd := ItemUpdate{ProductName: req.ProductName, Batch: req.Batch, UnitPrice: req.UnitPrice}
	if req.ExpirationDate != nil {
		exp, err := ParseDate(*req.ExpirationDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid expiration_date")
		}
		upd.ExpirationDate = &exp
	}
	it, err := h.svc.UpdateItem(c.Request().Context(), id, upd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, it)
}

func (h *Handler) AdjustItem(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req adjustRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	it, err := h.svc.AdjustItem(ctx, id, req.Delta, req.Reason, auth.ActorFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, it)
}

func (h *Handler) DeactivateItem(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Deactivate(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ProductGroups(c echo.Context) error {
	groups, err := h.svc.ProductGroups(c.Request().Context())
	if err != nil {
		return err
	}
	if groups == nil {
		groups = []ProductGroup{}
	}
	return c.JSON(http.StatusOK, groups)
}

func (h *Handler) PreviewAllocation(c echo.Context) error {
	code := strings.TrimSpace(c.QueryParam("product_code"))
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "product_code is required")
	}
	qty, err := strconv.Atoi(c.QueryParam("quantity"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "quantity must be an integer")
	}
	allocs, err := h.svc.PreviewAllocation(c.Request().Context(), code, qty)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"product_code": code,
		"quantity":     qty,
		"allocations":  allocs,
	})
}

func (h *Handler) Stats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context(), h.now())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) Expiring(c echo.Context) error {
	days, _ := strconv.Atoi(c.QueryParam("days"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	lots, err := h.svc.Expiring(c.Request().Context(), h.now(), days, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, lots)
}

// RecentActivity lists the newest movements, or every movement of one
// procedure when procedure_id is given.
func (h *Handler) RecentActivity(c echo.Context) error {
	var (
		acts []*Activity
		err  error
	)
	if pid := c.QueryParam("procedure_id"); pid != "" {
		id, perr := uuid.Parse(pid)
		if perr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid procedure_id")
		}
		acts, err = h.svc.ProcedureActivity(c.Request().Context(), id)
	} else {
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		if limit > pagination.MaxLimit {
			limit = pagination.MaxLimit
		}
		acts, err = h.svc.RecentActivity(c.Request().Context(), limit)
	}
	if err != nil {
		return err
	}
	if acts == nil {
		acts = []*Activity{}
	}
	return c.JSON(http.StatusOK, acts)
}

// ParseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
