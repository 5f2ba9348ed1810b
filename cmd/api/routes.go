package main

import (
	"github.com/gin-gonic/gin"

	"github.com/Devon-White/livewire/internal/httpapi"
	"github.com/Devon-White/livewire/internal/session"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers) {
	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	{
		// Entry point: no session required yet.
		api.POST("/credentials", h.SetCredentials)

		// SignalWire webhooks (public). The platform has no session; the
		// call payload itself carries the project binding.
		api.POST("/swml", h.InboundSWML)
		api.POST("/swaig", h.SWAIG)
		api.POST("/call_status", h.CallStatus)

		// Widget form submit and unload beacon arrive with whatever
		// session the browser still has, possibly none.
		api.POST("/create_member", h.CreateMember)
		api.POST("/subscriber_offline/:subscriber_id", h.SubscriberOffline)

		api.POST("/login", h.Login)
		api.POST("/logout", h.Logout)

		// Requires verified SignalWire credentials.
		creds := api.Group("", session.RequireCredentials())
		{
			creds.POST("/swml_handler", h.UpsertSWMLHandler)
			creds.POST("/widget_config", h.WidgetConfig)
			creds.POST("/signup", h.Signup)
		}

		// Agent dashboard: requires a logged-in subscriber.
		agent := api.Group("", session.RequireSubscriber())
		{
			agent.GET("/call_info/:call_id", h.CallInfo)
			agent.POST("/create_sat", session.RequireCredentials(), h.CreateSAT)
		}
	}
}
