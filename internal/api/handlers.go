package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/dirsync/internal/app"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/workflow"
)

// ListItems handles GET /items?type=.
func (s *Server) ListItems(c *gin.Context) {
	items, err := s.app.Catalog.List(c.Request.Context(), c.Query("type"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// CreateItem handles POST /items.
func (s *Server) CreateItem(c *gin.Context) {
	var req app.NewItem
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	it, err := s.app.CreateItem(c.Request.Context(), actorOf(c), req)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, it)
}

// GetItem handles GET /items/:id.
func (s *Server) GetItem(c *gin.Context) {
	it, err := s.app.Catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

// UpdateItemRequest replaces the listed fields; a field with no values is removed.
type UpdateItemRequest struct {
	Metadata model.Metadata `json:"metadata" binding:"required"`
}

// UpdateItem handles PATCH /items/:id.
func (s *Server) UpdateItem(c *gin.Context) {
	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	it, err := s.app.UpdateItem(c.Request.Context(), actorOf(c), c.Param("id"), req.Metadata)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

// InstallItem handles POST /items/:id/install.
func (s *Server) InstallItem(c *gin.Context) {
	it, err := s.app.InstallItem(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

// WithdrawItem handles POST /items/:id/withdraw.
func (s *Server) WithdrawItem(c *gin.Context) {
	it, err := s.app.WithdrawItem(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

// ReinstateItem handles POST /items/:id/reinstate.
func (s *Server) ReinstateItem(c *gin.Context) {
	it, err := s.app.ReinstateItem(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

// FireEventRequest names the event kind to deliver.
type FireEventRequest struct {
	Kind string `json:"kind" binding:"required"`
}

// FireEvent handles POST /items/:id/events. The event is delivered
// synchronously at the item's current version; a redelivery is a no-op.
func (s *Server) FireEvent(c *gin.Context) {
	var req FireEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	kind, err := model.ParseEventKind(req.Kind)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.app.Fire(c.Request.Context(), c.Param("id"), kind); err != nil {
		respondWithError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// ListRelationships handles GET /items/:id/relationships.
func (s *Server) ListRelationships(c *gin.Context) {
	rels, err := s.app.Store.RelationshipsOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rels)
}

// ItemWorkflow handles GET /items/:id/workflow.
func (s *Server) ItemWorkflow(c *gin.Context) {
	wfi, err := s.app.Workflow.ForItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	if wfi == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, APIError{Code: "NOT_FOUND", Message: "no active workflow", ItemID: c.Param("id")})
		return
	}
	c.JSON(http.StatusOK, wfi)
}

// ListDuplicates handles GET /items/:id/duplicates.
func (s *Server) ListDuplicates(c *gin.Context) {
	decisions, err := s.app.Dedup.Decisions(c.Request.Context(), c.Param("id"), model.DedupContextWorkflow)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, decisions)
}

// ItemProvenance handles GET /items/:id/provenance.
func (s *Server) ItemProvenance(c *gin.Context) {
	trail, err := s.app.Trace(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, trail)
}

// AllProvenance handles GET /provenance.
func (s *Server) AllProvenance(c *gin.Context) {
	trail, err := s.app.Trace(c.Request.Context(), "")
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, trail)
}

// ListWorkflows handles GET /workflows?state=.
func (s *Server) ListWorkflows(c *gin.Context) {
	wfis, err := s.app.Workflow.List(c.Request.Context(), model.WorkflowState(c.Query("state")))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, wfis)
}

// GetWorkflow handles GET /workflows/:id.
func (s *Server) GetWorkflow(c *gin.Context) {
	wfi, err := s.app.Workflow.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, wfi)
}

// Decide handles POST /workflows/:id/decision.
func (s *Server) Decide(c *gin.Context) {
	var outcome workflow.Outcome
	if err := c.ShouldBindJSON(&outcome); err != nil {
		badRequest(c, err.Error())
		return
	}
	if _, err := workflow.ParseAction(string(outcome.Action)); err != nil {
		badRequest(c, err.Error())
		return
	}
	wfi, err := s.app.Decide(c.Request.Context(), actorOf(c), c.Param("id"), outcome)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, wfi)
}

// CancelWorkflow handles DELETE /workflows/:id.
func (s *Server) CancelWorkflow(c *gin.Context) {
	if err := s.app.CancelWorkflow(c.Request.Context(), actorOf(c), c.Param("id")); err != nil {
		respondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// VerdictRequest judges a duplicate candidate pair.
type VerdictRequest struct {
	ItemID      string      `json:"item_id" binding:"required"`
	DuplicateID string      `json:"duplicate_id" binding:"required"`
	Verdict     app.Verdict `json:"verdict" binding:"required"`
	Note        string      `json:"note"`
}

// JudgeDuplicate handles POST /dedup/verdicts. Only administrators judge.
func (s *Server) JudgeDuplicate(c *gin.Context) {
	actor := actorOf(c)
	if !actor.Admin {
		respondWithError(c, model.NewNotAuthorizedError("", actor.ID))
		return
	}
	var req VerdictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Verdict != app.VerdictVerify && req.Verdict != app.VerdictReject {
		badRequest(c, "verdict must be verify or reject")
		return
	}
	if err := s.app.JudgeDuplicate(c.Request.Context(), req.ItemID, req.DuplicateID, req.Verdict, req.Note); err != nil {
		respondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
