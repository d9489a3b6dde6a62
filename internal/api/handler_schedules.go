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
	"smart-building-backend/internal/schedule"
)

func ruleID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid rule ID"})
		return 0, false
	}
	return id, true
}

// ListSchedules handles GET /api/schedules.
func (h *Handler) ListSchedules(c *gin.Context) {
	rules, err := h.store.ListRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

// CreateSchedule handles POST /api/schedules. Rules whose window would
// cross midnight fail validation and are rejected here, not silently
// skipped later.
func (h *Handler) CreateSchedule(c *gin.Context) {
	var rule model.ScheduleRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule.ID = 0

	if err := h.store.CreateRule(c.Request.Context(), &rule); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	h.schedules.TriggerRefresh()
	c.JSON(http.StatusCreated, rule)
}

// UpdateSchedule handles PUT /api/schedules/{id}.
func (h *Handler) UpdateSchedule(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var existing model.ScheduleRule
	if err := h.store.DB().WithContext(ctx).First(&existing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	if err := c.ShouldBindJSON(&existing); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	existing.ID = id

	if err := h.store.UpdateRule(ctx, &existing); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	h.schedules.TriggerRefresh()
	c.JSON(http.StatusOK, existing)
}

// DeleteSchedule handles DELETE /api/schedules/{id}.
func (h *Handler) DeleteSchedule(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteRule(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.schedules.TriggerRefresh()
	c.Status(http.StatusNoContent)
}

// CheckSchedules handles POST /api/check-schedules: it forces one
// schedule evaluation and reports what the system decided.
func (h *Handler) CheckSchedules(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now().In(h.schedules.Location())

	if err := h.schedules.EvaluateOnce(ctx, now); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	manual, err := h.coord.ManualMode(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	overtimeActive, err := h.overtime.ActiveAt(ctx, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var desired map[model.RelayID]int
	if overtimeActive {
		// The schedule stands down while overtime runs; report the
		// overtime union instead of the rule windows.
		sessions, err := h.store.ListSessions(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		var running []model.OvertimeSession
		for _, s := range sessions {
			if s.Status == model.StatusRunning {
				running = append(running, s)
			}
		}
		desired = overtime.DesiredRelays(running)
	} else {
		rules, err := h.store.ActiveRulesForDay(ctx, model.DayName(now))
		if err != nil {
			log.Printf("api: failed to fetch rules for check-schedules: %v", err)
		}
		desired = schedule.Desired(rules, now)
	}

	active := make([]string, 0, 2)
	inactive := make([]string, 0, 2)
	for _, id := range model.AllRelays() {
		if desired[id] == 1 {
			active = append(active, string(id))
		} else {
			inactive = append(inactive, string(id))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"manual_mode":      manual,
		"overtime_active":  overtimeActive,
		"active_devices":   active,
		"inactive_devices": inactive,
	})
}
