package main

import (
	"database/sql"
	"net/http"
	"time"

	"academy-caller/internal/httpapi"
	"academy-caller/internal/push"
	"academy-caller/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type app struct {
	db       *sql.DB
	handlers httpapi.Handlers
	webhooks httpapi.WebhookHandlers
	push     *push.Handler
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, a app) {
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), a.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Push channel for browser observers.
	r.GET("/ws", a.push.Serve)

	// Provider webhooks (public).
	// NOTE: these should be protected by provider signature validation in production.
	{
		wh := a.webhooks
		r.POST("/webhooks/voice/answer", wh.VoiceAnswer)
		r.POST("/webhooks/voice/inbound", wh.VoiceInbound)
		r.POST("/webhooks/voice/status", wh.VoiceStatus)
		r.POST("/webhooks/voice/recording", wh.VoiceRecording)
		r.POST("/webhooks/sms/inbound", wh.SMSInbound)
		r.POST("/webhooks/sms/status", wh.SMSStatus)
	}

	// Operator API.
	v1 := r.Group("/v1")
	{
		h := a.handlers

		callsGroup := v1.Group("/calls")
		{
			callsGroup.POST("", h.PlaceCall)
			callsGroup.GET("", h.ListActiveCalls)
			callsGroup.GET("/:id", h.GetCall)
			callsGroup.POST("/:id/hangup", h.HangupCall)
			callsGroup.GET("/:id/recordings", h.ListCallRecordings)
		}

		v1.GET("/reports/calls", h.CallsSummary)

		v1.POST("/messages", h.SendMessage)
		v1.GET("/conversations", h.ListConversations)
		v1.GET("/conversations/:counterparty", h.ConversationHistory)

		studentsGroup := v1.Group("/students")
		{
			studentsGroup.POST("", h.CreateStudent)
			studentsGroup.GET("", h.ListStudents)
			studentsGroup.GET("/:id", h.GetStudent)
			studentsGroup.PUT("/:id", h.UpdateStudent)
			studentsGroup.DELETE("/:id", h.DeleteStudent)
		}

		v1.POST("/video/token", h.IssueVideoToken)
	}
}
