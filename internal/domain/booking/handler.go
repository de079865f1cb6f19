package booking

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
	g.POST("/appointments", h.Book)
	g.GET("/appointments", h.List)
	g.GET("/appointments/:id", h.Get)
	g.POST("/appointments/:id/cancel", h.Cancel)
}

func (h *Handler) Book(c echo.Context) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return apperr.JSON(c, apperr.Validation("invalid request body"))
	}
	actor := auth.ActorFromContext(c.Request().Context())
	result, err := h.svc.Book(c.Request().Context(), actor, req)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid id"))
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	if raw := c.QueryParam("episode_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperr.JSON(c, apperr.Validation("invalid episode_id"))
		}
		items, total, err := h.svc.ListByEpisode(ctx, id, pg.Limit, pg.Offset)
		if err != nil {
			return apperr.JSON(c, err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperr.JSON(c, apperr.Validation("invalid patient_id"))
		}
		items, total, err := h.svc.ListByPatient(ctx, id, pg.Limit, pg.Offset)
		if err != nil {
			return apperr.JSON(c, err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}
	return apperr.JSON(c, apperr.Validation("episode_id or patient_id is required"))
}

type cancelRequest struct {
	By string `json:"by,omitempty"` // patient | doctor
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid id"))
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return apperr.JSON(c, apperr.Validation("invalid request body"))
	}
	actor := auth.ActorFromContext(c.Request().Context())
	a, err := h.svc.Cancel(c.Request().Context(), actor, id, req.By)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, a)
}
