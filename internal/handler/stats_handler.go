package handler

import (
	"net/http"
	"strconv"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/logic"
	"github.com/gin-gonic/gin"
)

type StatsHandler struct {
	statsLogic *logic.StatsLogic
}

func NewStatsHandler(statsLogic *logic.StatsLogic) *StatsHandler {
	return &StatsHandler{statsLogic: statsLogic}
}

// GetGlobalStats 获取全局统计
func (h *StatsHandler) GetGlobalStats(c *gin.Context) {
	stats, err := h.statsLogic.GetGlobalStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// GetLeaderboard 获取捐赠排行榜
func (h *StatsHandler) GetLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	entries, err := h.statsLogic.GetLeaderboard(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}
