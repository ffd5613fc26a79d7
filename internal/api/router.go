// Package api contains the HTTP handlers and routing for the payment service.
package api

import (
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures the Gin router with all routes and middleware.
func SetupRouter(handler *Handler, ginMode, serviceAPIKey string) *gin.Engine {
	gin.SetMode(ginMode)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware())
	router.Use(RequestIDMiddleware())

	// Health check and metrics (public)
	router.GET("/health", handler.Health)
	router.GET("/metrics", gin.WrapF(func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	}))

	// API v1 routes (server-to-server, requires Bearer auth)
	v1 := router.Group("/api/v1")
	v1.Use(ServiceAuthMiddleware(serviceAPIKey))
	{
		payments := v1.Group("/payments")
		{
			payments.POST("", handler.CreatePayment)
			payments.GET("/:attempt_id", handler.GetPayment)
			payments.POST("/:attempt_id/resolve", handler.ResolvePayment)
			payments.POST("/:attempt_id/refunds", handler.CreateRefund)
			payments.POST("/:attempt_id/abandon", handler.AbandonPayment)
		}

		events := v1.Group("/events")
		{
			events.POST("/session-reminder", handler.SessionReminderEvent)
			events.POST("/patient-waiting", handler.PatientWaitingEvent)
			events.POST("/test-completed", handler.TestCompletedEvent)
			events.POST("/emergency", handler.EmergencyEvent)
		}

		notifications := v1.Group("/notifications")
		{
			notifications.POST("/permission", handler.RequestPermission)
			notifications.POST("/actions", handler.ResolveAction)
		}
	}

	return router
}
