// Package api exposes the host surface of dirsync over HTTP: item writes,
// event delivery, review decisions, duplicate verdicts and provenance.
//
// The caller identifies itself with the X-Actor header; X-Actor-Admin: true
// grants administrator rights. Every write runs in its own engine session.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/roach88/dirsync/internal/app"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/session"
	"github.com/roach88/dirsync/internal/store"
)

// Header names carrying the caller identity.
const (
	HeaderActor = "X-Actor"
	HeaderAdmin = "X-Actor-Admin"
)

// Server serves the HTTP API over a wired App.
type Server struct {
	app *app.App
}

// NewServer creates a server for a.
func NewServer(a *app.App) *Server {
	return &Server{app: a}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "consumers": s.app.Engine.Consumers()})
	})

	v1 := r.Group("/api/v1")
	{
		items := v1.Group("/items")
		items.GET("", s.ListItems)
		items.POST("", requireActor(), s.CreateItem)
		items.GET("/:id", s.GetItem)
		items.PATCH("/:id", requireActor(), s.UpdateItem)
		items.POST("/:id/install", requireActor(), s.InstallItem)
		items.POST("/:id/withdraw", requireActor(), s.WithdrawItem)
		items.POST("/:id/reinstate", requireActor(), s.ReinstateItem)
		items.POST("/:id/events", s.FireEvent)
		items.GET("/:id/relationships", s.ListRelationships)
		items.GET("/:id/workflow", s.ItemWorkflow)
		items.GET("/:id/duplicates", s.ListDuplicates)
		items.GET("/:id/provenance", s.ItemProvenance)

		workflows := v1.Group("/workflows")
		workflows.GET("", s.ListWorkflows)
		workflows.GET("/:id", s.GetWorkflow)
		workflows.POST("/:id/decision", requireActor(), s.Decide)
		workflows.DELETE("/:id", requireActor(), s.CancelWorkflow)

		v1.POST("/dedup/verdicts", requireActor(), s.JudgeDuplicate)
		v1.GET("/provenance", s.AllProvenance)
	}
	return r
}

// APIError is the error body of every failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	ItemID  string `json:"item_id,omitempty"`
}

func respondWithError(c *gin.Context, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}
	c.AbortWithStatusJSON(status, body)
}

// classify maps domain errors onto HTTP statuses.
func classify(err error) (int, APIError) {
	var se *model.SyncError
	if errors.As(err, &se) {
		body := APIError{Code: string(se.Code), Message: se.Message, ItemID: se.ItemID}
		switch se.Code {
		case model.ErrCodeNotAuthorized:
			return http.StatusForbidden, body
		case model.ErrCodeIllegalState:
			return http.StatusConflict, body
		case model.ErrCodeConfiguration:
			return http.StatusUnprocessableEntity, body
		}
		return http.StatusInternalServerError, body
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, APIError{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, APIError{Code: "CONFLICT", Message: err.Error()}
	}
	return http.StatusInternalServerError, APIError{Code: "INTERNAL", Message: err.Error()}
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Code: "BAD_REQUEST", Message: msg})
}

const actorKey = "actor"

// requireActor rejects requests without an X-Actor header and stores the
// parsed actor on the context.
func requireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderActor)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{Code: "UNAUTHENTICATED", Message: HeaderActor + " header required"})
			return
		}
		admin, _ := strconv.ParseBool(c.GetHeader(HeaderAdmin))
		c.Set(actorKey, session.Actor{ID: id, Admin: admin})
		c.Next()
	}
}

func actorOf(c *gin.Context) session.Actor {
	return c.MustGet(actorKey).(session.Actor)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"actor", c.GetHeader(HeaderActor),
		)
	}
}
