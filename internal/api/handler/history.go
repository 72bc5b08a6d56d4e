package handler

import (
	"accord/backend/internal/config"
	"accord/backend/internal/models"
	"accord/backend/internal/storage"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetHistory returns a bounded page of a chat's most recent messages.
func (h *Handler) GetHistory(c *gin.Context) {
	chatID := c.Param("chatId")

	limit := config.DefaultHistoryPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, config.MaxHistoryPageSize)
	}

	order, ok := models.ParseHistoryOrder(c.Query("order"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order must be asc or desc"})
		return
	}

	messages, err := storage.CollectHistory(h.Store.FetchHistory(c.Request.Context(), chatID, limit, order))
	if err != nil {
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("history fetch failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history unavailable"})
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"chatId": chatID, "messages": messages})
}

// GetAnalysis returns the chat's latest analysis.
func (h *Handler) GetAnalysis(c *gin.Context) {
	chatID := c.Param("chatId")

	result, err := h.Store.GetLatestAnalysis(c.Request.Context(), chatID)
	if err != nil {
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("analysis fetch failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis unavailable"})
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat has not been analyzed"})
		return
	}
	c.JSON(http.StatusOK, result)
}
