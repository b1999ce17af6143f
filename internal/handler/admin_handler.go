package handler

import (
	"net/http"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/chain"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/indexer"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/logger"
	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	chainClient *chain.Client
	engine      *indexer.Engine
}

func NewAdminHandler(chainClient *chain.Client, engine *indexer.Engine) *AdminHandler {
	return &AdminHandler{chainClient: chainClient, engine: engine}
}

// Withdraw 提交项目提现交易
// 本服务唯一的写链操作，鉴权由上游网关完成
func (h *AdminHandler) Withdraw(c *gin.Context) {
	var req struct {
		ProjectId uint64 `json:"project_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txHash, err := h.chainClient.Withdraw(c.Request.Context(), req.ProjectId)
	if err != nil {
		logger.Error("Withdraw for project %d failed: %v", req.ProjectId, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.Info("Withdraw submitted for project %d: %s", req.ProjectId, txHash)
	c.JSON(http.StatusOK, gin.H{
		"message": "提现交易已提交",
		"tx_hash": txHash,
	})
}

// GetIndexerStatus 获取索引器状态
func (h *AdminHandler) GetIndexerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": h.engine.GetStatus()})
}
