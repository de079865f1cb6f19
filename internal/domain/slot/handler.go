package slot

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/apperr"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/auth"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleProvider, auth.RoleSurgeon, auth.RoleProsthodontist))
	g.POST("/slots", h.Publish)
	g.GET("/slots", h.List)
	g.GET("/slots/:id", h.Get)
	g.DELETE("/slots/:id", h.Delete)
}

// slotResponse adds the derived legacy status field to the canonical
// record for older clients.
type slotResponse struct {
	*TimeSlot
	Status string `json:"status"`
}

func respond(sl *TimeSlot) slotResponse {
	return slotResponse{TimeSlot: sl, Status: sl.LegacyStatus()}
}

func (h *Handler) Publish(c echo.Context) error {
	var sl TimeSlot
	if err := c.Bind(&sl); err != nil {
		return apperr.JSON(c, apperr.Validation("invalid request body"))
	}
	if err := h.svc.Publish(c.Request().Context(), &sl); err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusCreated, respond(&sl))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid id"))
	}
	sl, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, respond(sl))
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f ListFilter
	if raw := c.QueryParam("provider_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperr.JSON(c, apperr.Validation("invalid provider_id"))
		}
		f.ProviderID = &id
	}
	f.FreeOnly = c.QueryParam("free") == "true"
	f.FutureOnly = c.QueryParam("future") == "true"
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.JSON(c, err)
	}
	out := make([]slotResponse, 0, len(items))
	for _, sl := range items {
		out = append(out, respond(sl))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg.Limit, pg.Offset))
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid id"))
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return apperr.JSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
