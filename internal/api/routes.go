package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	apimw "github.com/helmarr/helmarr/internal/api/middleware"
)

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimw.SecurityHeaders())

	// Request body size limit (1MB)
	s.echo.Use(middleware.BodyLimit("1M"))

	// Request logging
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	// Gzip compression, skipped for the WebSocket upgrade
	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ws", s.hub.HandleWebSocket)

	api := s.echo.Group("/api/v1")
	api.GET("/status", s.getStatus)

	syncGroup := api.Group("/sync")
	syncGroup.GET("/status", s.getSyncStatus)
	syncGroup.POST("/run", s.triggerSync)
	syncGroup.GET("/queue", s.getQueueStatus)

	approvals := api.Group("/approvals")
	approvals.GET("", s.listApprovals)
	approvals.GET("/:id", s.getApproval)
	approvals.POST("/:id/approve", s.approveRequest)
	approvals.POST("/:id/reject", s.rejectRequest)

	rules := api.Group("/rules")
	rules.GET("", s.listRules)
	rules.GET("/:id", s.getRule)
	rules.POST("", s.createRule)
	rules.PUT("/:id", s.updateRule)
	rules.DELETE("/:id", s.deleteRule)

	instances := api.Group("/instances")
	instances.GET("", s.listInstances)
	instances.GET("/:id", s.getInstance)
	instances.POST("", s.createInstance)
	instances.PUT("/:id", s.updateInstance)
	instances.DELETE("/:id", s.deleteInstance)
	instances.POST("/:id/test", s.testInstance)

	users := api.Group("/users")
	users.GET("", s.listUsers)
	users.GET("/:id", s.getUser)
	users.POST("", s.createUser)
	users.PUT("/:id", s.updateUser)
	users.DELETE("/:id", s.deleteUser)
	users.GET("/:id/quotas", s.listUserQuotas)
	users.PUT("/:id/quotas", s.setUserQuota)
	users.GET("/:id/quotas/:contentType/status", s.getQuotaStatus)

	notifications := api.Group("/notifications")
	notifications.GET("", s.listNotifications)
	notifications.POST("", s.createNotification)
	notifications.PUT("/:id", s.updateNotification)
	notifications.DELETE("/:id", s.deleteNotification)
	notifications.POST("/test", s.testNotification)

	system := api.Group("/system")
	system.GET("/health", s.getHealth)
	system.GET("/health/summary", s.getHealthSummary)
	system.GET("/tasks", s.listTasks)
	system.POST("/tasks/:id/run", s.runTask)
}
