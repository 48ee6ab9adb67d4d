package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/auth"
	"github.com/GScandelari/curva-mestra-system-sub005/pkg/pagination"
)

// Lister is the read side of the audit trail.
type Lister interface {
	List(ctx context.Context, f Filter, limit, offset int) ([]*Record, int, error)
}

type Handler struct {
	store Lister
}

func NewHandler(store Lister) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes exposes the trail to clinic administrators only.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleClinicAdmin))
	g.GET("/audit", h.List)
}

var validActions = map[string]bool{"create": true, "update": true, "delete": true}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	f := Filter{
		UserID:     c.QueryParam("user_id"),
		Resource:   c.QueryParam("resource"),
		ResourceID: c.QueryParam("resource_id"),
		Action:     c.QueryParam("action"),
	}
	if f.Action != "" && !validActions[f.Action] {
		return echo.NewHTTPError(http.StatusBadRequest, "action must be create, update or delete")
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		v := c.QueryParam(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": expected RFC 3339")
		}
		*dst = &t
	}

	records, total, err := h.store.List(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	if records == nil {
		records = []*Record{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, p.Limit, p.Offset))
}
