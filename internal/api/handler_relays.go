package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-building-backend/internal/model"
)

type relayWriteRequest struct {
	Value *int `json:"value" binding:"required"`
}

// SetRelay handles POST /api/relays/{id}: a manual relay toggle. The
// coordinator enters manual mode and arms the return-to-auto countdown.
func (h *Handler) SetRelay(c *gin.Context) {
	id, err := model.ParseRelayID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req relayWriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.coord.ManualSet(c.Request.Context(), id, *req.Value); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SetSOS handles POST /api/sos: the emergency toggle, which forces both
// relays to the same value on top of entering manual mode.
func (h *Handler) SetSOS(c *gin.Context) {
	var req relayWriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.coord.ManualSOS(c.Request.Context(), *req.Value); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RelayStatus handles GET /api/relay-status: a snapshot of the shared
// relay state as the store holds it right now.
func (h *Handler) RelayStatus(c *gin.Context) {
	ctx := c.Request.Context()

	relays := make(map[string]int, 2)
	for _, id := range model.AllRelays() {
		v, err := h.relays.Relay(ctx, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		relays[string(id)] = v
	}

	sos, err := h.relays.SOS(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	manual, err := h.relays.ManualMode(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"relays":      relays,
		"sos":         sos,
		"manual_mode": manual,
	})
}
