package episode

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/pathway"
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
	g.POST("/episodes", h.Open)
	g.GET("/episodes", h.List)
	g.GET("/episodes/:id", h.Get)
	g.PATCH("/episodes/:id", h.Patch)
	g.POST("/episodes/:id/close", h.Close)

	g.GET("/episodes/:id/steps", h.ListSteps)
	g.POST("/episodes/:id/steps", h.InsertStep)
	g.PATCH("/episodes/:id/steps/:stepId", h.PatchStep)
	g.DELETE("/episodes/:id/steps/:stepId", h.DeleteStep)
	g.PUT("/episodes/:id/steps/order", h.Reorder)
	g.GET("/episodes/:id/intents", h.ListIntents)
}

func (h *Handler) Open(c echo.Context) error {
	var e Episode
	if err := c.Bind(&e); err != nil {
		return apperr.JSON(c, apperr.Validation("invalid request body"))
	}
	if err := h.svc.Open(c.Request().Context(), &e); err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid id"))
	}
	e, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	var patientID *uuid.UUID
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperr.JSON(c, apperr.Validation("invalid patient_id"))
		}
		patientID = &id
	}
	items, total, err := h.svc.List(c.Request().Context(), patientID, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// patchRequest is the multiplexed episode edit: metadata fields, a
// provider assignment, or a pathway link action.
type patchRequest struct {
	Action          string     `json:"action,omitempty"` // addPathway | removePathway | assignProvider
	PathwayID       *uuid.UUID `json:"pathway_id,omitempty"`
	ProviderID      *uuid.UUID `json:"provider_id,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	SnapshotVersion int        `json:"snapshot_version,omitempty"`
}

func (h *Handler) Patch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid id"))
	}
	var req patchRequest
	if err := c.Bind(&req); err != nil {
		return apperr.JSON(c, apperr.Validation("invalid request body"))
	}
	ctx := c.Request().Context()

	switch req.Action {
	case "addPathway":
		if req.PathwayID == nil {
			return apperr.JSON(c, apperr.Validation("pathway_id is required"))
		}
		if err := h.svc.AddPathway(ctx, id, *req.PathwayID); err != nil {
			return apperr.JSON(c, err)
		}
	case "removePathway":
		if req.PathwayID == nil {
			return apperr.JSON(c, apperr.Validation("pathway_id is required"))
		}
		if err := h.svc.RemovePathway(ctx, id, *req.PathwayID); err != nil {
			return apperr.JSON(c, err)
		}
	case "assignProvider":
		if _, err := h.svc.AssignProvider(ctx, id, req.ProviderID); err != nil {
			return apperr.JSON(c, err)
		}
	case "":
		if _, err := h.svc.UpdateMeta(ctx, id, req.Reason, req.SnapshotVersion); err != nil {
			return apperr.JSON(c, err)
		}
	default:
		return apperr.JSON(c, apperr.Validation("unknown action %q", req.Action))
	}

	e, err := h.svc.Get(ctx, id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Close(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid id"))
	}
	e, err := h.svc.Close(c.Request().Context(), id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) ListSteps(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid id"))
	}
	steps, err := h.svc.Steps(c.Request().Context(), id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, steps)
}

type insertStepRequest struct {
	Code            string       `json:"code,omitempty"`
	Label           string       `json:"label,omitempty"`
	Pool            pathway.Pool `json:"pool,omitempty"`
	DurationMinutes int          `json:"duration_minutes,omitempty"`
}

func (h *Handler) InsertStep(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid id"))
	}
	var req insertStepRequest
	if err := c.Bind(&req); err != nil {
		return apperr.JSON(c, apperr.Validation("invalid request body"))
	}
	ctx := c.Request().Context()
	var st *Step
	if req.Code != "" {
		st, err = h.svc.InsertCatalogStep(ctx, id, req.Code)
	} else {
		st, err = h.svc.InsertFreeTextStep(ctx, id, req.Label, req.Pool, req.DurationMinutes)
	}
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusCreated, st)
}

type patchStepRequest struct {
	Action string `json:"action"` // skip | unskip | complete
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) PatchStep(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid id"))
	}
	stepID, err := uuid.Parse(c.Param("stepId"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid step id"))
	}
	var req patchStepRequest
	if err := c.Bind(&req); err != nil {
		return apperr.JSON(c, apperr.Validation("invalid request body"))
	}
	ctx := c.Request().Context()
	var st *Step
	switch req.Action {
	case "skip":
		st, err = h.svc.Skip(ctx, id, stepID, req.Reason)
	case "unskip":
		st, err = h.svc.Unskip(ctx, id, stepID)
	case "complete":
		st, err = h.svc.Complete(ctx, id, stepID)
	default:
		return apperr.JSON(c, apperr.Validation("unknown action %q", req.Action))
	}
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) DeleteStep(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid id"))
	}
	stepID, err := uuid.Parse(c.Param("stepId"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid step id"))
	}
	if err := h.svc.DeleteStep(c.Request().Context(), id, stepID); err != nil {
		return apperr.JSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type reorderRequest struct {
	StepIDs []uuid.UUID `json:"step_ids"`
}

func (h *Handler) Reorder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid id"))
	}
	var req reorderRequest
	if err := c.Bind(&req); err != nil {
		return apperr.JSON(c, apperr.Validation("invalid request body"))
	}
	if err := h.svc.Reorder(c.Request().Context(), id, req.StepIDs); err != nil {
		return apperr.JSON(c, err)
	}
	steps, err := h.svc.Steps(c.Request().Context(), id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, steps)
}

func (h *Handler) ListIntents(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid id"))
	}
	intents, err := h.svc.OpenIntents(c.Request().Context(), id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, intents)
}
