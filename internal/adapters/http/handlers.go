package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/app/orch"
	"github.com/dkeye/Converse/internal/directory"
	"github.com/dkeye/Converse/internal/domain"
)

type handlers struct {
	orch *orch.Orchestrator
}

type userRequest struct {
	ID string `uri:"id" binding:"required,max=64"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Stats())
}

func (h *handlers) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.orch.ICEServers})
}

// user shows what a partner would see for this id.
func (h *handlers) user(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid id"})
		return
	}
	if h.orch.Directory == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no directory"})
		return
	}
	p, err := h.orch.Directory.Lookup(c.Request.Context(), domain.UserID(req.ID))
	switch {
	case errors.Is(err, directory.ErrUnknownUser):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Str("user", req.ID).Msg("directory lookup")
		c.JSON(http.StatusBadGateway, gin.H{"error": "directory unavailable"})
	default:
		c.JSON(http.StatusOK, p)
	}
}
