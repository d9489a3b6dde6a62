package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"smart-building-backend/internal/model"
	"smart-building-backend/internal/overtime"
)

func sessionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return 0, false
	}
	return id, true
}

// ListOvertime handles GET /api/overtime.
func (h *Handler) ListOvertime(c *gin.Context) {
	sessions, err := h.store.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// GetOvertime handles GET /api/overtime/{id}.
func (h *Handler) GetOvertime(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	session, err := h.store.GetSession(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, session)
}

// CreateOvertime handles POST /api/overtime. A session whose window has
// already opened is picked up by an immediate evaluation, so its status
// and the relays reflect the wall clock as soon as the request returns.
func (h *Handler) CreateOvertime(c *gin.Context) {
	var session model.OvertimeSession
	if err := c.ShouldBindJSON(&session); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session.ID = 0
	session.Status = model.StatusNotStarted
	if session.LightSelection == "" {
		session.LightSelection = model.LightAll
	}

	ctx := c.Request.Context()
	if err := h.store.CreateSession(ctx, &session); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().In(h.overtime.Location())
	if err := h.overtime.EvaluateOnce(ctx, now); err != nil {
		log.Printf("api: evaluation after session create failed: %v", err)
	}

	created, err := h.store.GetSession(ctx, session.ID)
	if err != nil {
		created = session
	}
	c.JSON(http.StatusCreated, created)
}

// UpdateOvertime handles PUT /api/overtime/{id}. Completed sessions stay
// completed even if their time fields are edited back into the future.
func (h *Handler) UpdateOvertime(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	session, err := h.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	status := session.Status
	if err := c.ShouldBindJSON(&session); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session.ID = id
	session.Status = status

	if err := h.store.UpdateSession(ctx, &session); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().In(h.overtime.Location())
	if err := h.overtime.EvaluateOnce(ctx, now); err != nil {
		log.Printf("api: evaluation after session update failed: %v", err)
	}

	updated, err := h.store.GetSession(ctx, id)
	if err != nil {
		updated = session
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteOvertime handles DELETE /api/overtime/{id}. Deleting a Running
// session resyncs the relays so a vanished last session still turns the
// lights off.
func (h *Handler) DeleteOvertime(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.store.DeleteSession(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.overtime.Resync(ctx); err != nil {
		log.Printf("api: relay resync after session delete failed: %v", err)
	}
	c.Status(http.StatusNoContent)
}

// AutoStart handles POST /overtime/{id}/auto-start.
func (h *Handler) AutoStart(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	now := time.Now().In(h.overtime.Location())
	session, err := h.overtime.Start(c.Request.Context(), id, now)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, overtime.ErrCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": "session already completed"})
	case errors.Is(err, overtime.ErrNotDue):
		c.JSON(http.StatusConflict, gin.H{"error": "session start time not reached"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "session": session})
	}
}

// AutoComplete handles POST /overtime/{id}/auto-complete.
func (h *Handler) AutoComplete(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	now := time.Now().In(h.overtime.Location())
	session, err := h.overtime.Complete(c.Request.Context(), id, now)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "session": session})
	}
}

// CutoffOvertime handles POST /overtime/{id}/cutoff.
func (h *Handler) CutoffOvertime(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	now := time.Now().In(h.overtime.Location())
	session, err := h.overtime.Cutoff(c.Request.Context(), id, now)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, overtime.ErrNotRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "session is not running"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "session": session})
	}
}

// StatusCheck handles GET /overtime/status-check: it forces one
// evaluation pass and reports the full session list plus whether a new
// overtime session may be scheduled right now.
func (h *Handler) StatusCheck(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now().In(h.overtime.Location())

	if err := h.overtime.EvaluateOnce(ctx, now); err != nil {
		log.Printf("api: status-check evaluation failed: %v", err)
	}

	sessions, err := h.store.ListSessions(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	available := true
	rules, err := h.store.ActiveRulesForDay(ctx, model.DayName(now))
	if err != nil {
		log.Printf("api: failed to fetch rules for availability: %v", err)
	} else {
		available = overtime.AvailableAt(rules, now)
	}

	c.JSON(http.StatusOK, gin.H{
		"overtimes":         sessions,
		"overtimeAvailable": available,
		"checked_at":        now,
	})
}
