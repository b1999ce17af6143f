package router

import (
	"time"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/cache"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/chain"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/config"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/handler"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/indexer"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/logic"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/store"
	"github.com/gin-gonic/gin"
)

func Setup(st *store.Store, c cache.Cache, chainClient *chain.Client, engine *indexer.Engine, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "donation-hub",
		})
	})

	ttl := time.Duration(cfg.Redis.TTL) * time.Second
	projectLogic := logic.NewProjectLogic(st, c, ttl)
	userLogic := logic.NewUserLogic(st, c, ttl)
	statsLogic := logic.NewStatsLogic(st, c, ttl)

	// API版本组
	v1 := r.Group("/api/v1")
	{
		projectHandler := handler.NewProjectHandler(projectLogic)
		projects := v1.Group("/projects")
		{
			projects.GET("", projectHandler.GetProjects)
			projects.GET("/:id", projectHandler.GetProject)
			projects.GET("/:id/donations", projectHandler.GetProjectDonations)
		}

		userHandler := handler.NewUserHandler(userLogic)
		users := v1.Group("/users")
		{
			users.GET("/:address/profile", userHandler.GetProfile)
			users.GET("/:address/tokens", userHandler.GetTokens)
		}

		statsHandler := handler.NewStatsHandler(statsLogic)
		v1.GET("/stats", statsHandler.GetGlobalStats)
		v1.GET("/leaderboard", statsHandler.GetLeaderboard)

		adminHandler := handler.NewAdminHandler(chainClient, engine)
		v1.GET("/indexer/status", adminHandler.GetIndexerStatus)
		admin := v1.Group("/admin")
		{
			admin.POST("/withdraw", adminHandler.Withdraw)
		}
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
