package patient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	staff.GET("/patients", h.List)
	staff.GET("/patients/search", h.Search)
	staff.GET("/patients/stats", h.Stats)
	staff.GET("/patients/code/:code", h.GetByCode)
	staff.GET("/patients/code/:code/history", h.History)
	staff.GET("/patients/:id", h.Get)
	staff.GET("/patients/:id/edit-logs", h.EditLogs)
	staff.POST("/patients", h.Create)
	staff.PUT("/patients/:id", h.Update)

	admin := api.Group("", auth.RequireRole(auth.RoleClinicAdmin))
	admin.DELETE("/patients/:id", h.Delete)
}

type createRequest struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	BirthDate string `json:"birth_date"`
	CPF       string `json:"cpf"`
	Notes     string `json:"notes"`
}

type updateRequest struct {
	Name      *string `json:"name"`
	Phone     *string `json:"phone"`
	Email     *string `json:"email"`
	BirthDate *string `json:"birth_date"`
	CPF       *string `json:"cpf"`
	Notes     *string `json:"notes"`
}

func parseBirthDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid birth_date")
	}
	return &d, nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	birth, err := parseBirthDate(req.BirthDate)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.Create(ctx, CreateInput{
		Code:      req.Code,
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
		BirthDate: birth,
		CPF:       req.CPF,
		Notes:     req.Notes,
	}, auth.ActorFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetByCode(c echo.Context) error {
	p, err := h.svc.GetByCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Search(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	found, err := h.svc.Search(c.Request().Context(), c.QueryParam("q"), SearchField(c.QueryParam("field")), limit)
	if err != nil {
		return err
	}
	if found == nil {
		found = []*Patient{}
	}
	return c.JSON(http.StatusOK, found)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in := UpdateInput{
		Name:  req.Name,
		Phone: req.Phone,
		Email: req.Email,
		CPF:   req.CPF,
		Notes: req.Notes,
	}
	if req.BirthDate != nil {
		if in.BirthDate, err = parseBirthDate(*req.BirthDate); err != nil {
			return err
		}
	}
	ctx := c.Request().Context()
	p, err := h.svc.Update(ctx, id, in, auth.ActorFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) History(c echo.Context) error {
	entries, err := h.svc.History(c.Request().Context(), c.Param("code"))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) EditLogs(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	logs, err := h.svc.EditLogs(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if logs == nil {
		logs = []*EditLog{}
	}
	return c.JSON(http.StatusOK, logs)
}

func (h *Handler) Stats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}
