// internal/api/router.go
package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/DocDeck/internal/auth"
	"github.com/Corphon/DocDeck/internal/di"
	"github.com/Corphon/DocDeck/internal/services"
	"github.com/Corphon/DocDeck/internal/tracing"
	"github.com/Corphon/DocDeck/internal/utils"
)

// 每个客户端 IP 每分钟的 API 请求上限
const (
	apiRateLimit  = 300
	apiRateWindow = time.Minute
)

// SetupRouter 配置HTTP路由，所需服务全部从容器获取
func SetupRouter(container *di.Container) (*gin.Engine, error) {
	projectService, err := di.Resolve[*services.ProjectService](container, "projects")
	if err != nil {
		return nil, fmt.Errorf("项目服务未正确初始化: %w", err)
	}

	sessionService, err := di.Resolve[*services.SessionService](container, "sessions")
	if err != nil {
		return nil, fmt.Errorf("会话服务未正确初始化: %w", err)
	}

	metrics, err := di.Resolve[*utils.APIMetrics](container, "metrics")
	if err != nil {
		return nil, fmt.Errorf("指标服务未正确初始化: %w", err)
	}

	wsManager, err := di.Resolve[*WebSocketManager](container, "websocket")
	if err != nil {
		return nil, fmt.Errorf("WebSocket 管理器未正确初始化: %w", err)
	}

	// 令牌配置可选，缺失时所有请求都按访客处理
	tokens, _ := container.Get("tokens").(*auth.TokenConfig)

	limiter, ok := container.Get("rate_limiter").(*RateLimiter)
	if !ok {
		limiter = NewRateLimiter()
		container.Register("rate_limiter", limiter)
	}

	handler := NewHandler(projectService, sessionService, metrics, wsManager)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(tracing.Middleware())
	r.Use(RequestIDMiddleware())
	r.Use(corsMiddleware())
	r.Use(MetricsMiddleware(metrics))
	r.Use(AuthMiddleware(tokens))

	r.GET("/health", handler.Health)

	// WebSocket 意图通道
	r.GET("/ws/sessions/:sid", wsManager.ServeSession)

	api := r.Group("/api")
	api.Use(RateLimitByIP(limiter, apiRateLimit, apiRateWindow))
	{
		api.GET("/variants", handler.ListVariants)
		api.GET("/metrics", handler.GetMetrics)

		// 项目
		projects := api.Group("/projects")
		{
			projects.GET("", handler.ListProjects)
			projects.POST("", handler.CreateProject)
			projects.GET("/:id", handler.GetProject)
			projects.DELETE("/:id", handler.DeleteProject)
			projects.POST("/:id/configure", handler.ConfigureProject)
		}

		// 配置会话
		sessions := api.Group("/sessions/:sid")
		{
			sessions.GET("", handler.GetSession)
			sessions.PUT("/topic", handler.SetTopic)

			sessions.POST("/sections", handler.AddSection)
			sessions.PUT("/sections/order", handler.ReorderSections)
			sessions.PATCH("/sections/:section_id", handler.UpdateSection)
			sessions.DELETE("/sections/:section_id", handler.RemoveSection)
			sessions.POST("/sections/:section_id/move", handler.MoveSection)

			sessions.POST("/validate", handler.ValidateSession)
			sessions.POST("/confirm", handler.ConfirmSession)
			sessions.POST("/cancel", handler.CancelSession)
		}
	}

	return r, nil
}
