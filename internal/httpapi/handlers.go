package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Devon-White/livewire/internal/callinfo"
	"github.com/Devon-White/livewire/internal/members"
	"github.com/Devon-White/livewire/internal/routing"
	"github.com/Devon-White/livewire/internal/session"
	"github.com/Devon-White/livewire/internal/signalwire"
	"github.com/Devon-White/livewire/internal/subscribers"
	"github.com/Devon-White/livewire/internal/users"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

// SignalWireAPI is the slice of the REST client the handlers use. Clients
// are built per request from the session's credentials, so tests swap the
// factory rather than the transport.
type SignalWireAPI interface {
	VerifyCredentials(ctx context.Context) error
	GetSWMLHandler(ctx context.Context, handlerID string) (signalwire.Handler, error)
	CreateSWMLHandler(ctx context.Context, name, requestURL string) (signalwire.Handler, error)
	UpdateSWMLHandler(ctx context.Context, handlerID, name, requestURL string) (signalwire.Handler, error)
	HandlerAddresses(ctx context.Context, handlerID string) (signalwire.AddressList, error)
	CreateGuestToken(ctx context.Context, allowedAddressID string) (string, error)
	CreateSubscriberToken(ctx context.Context, reference string) (string, error)
	SubscriberByEmail(ctx context.Context, email string) *signalwire.SubscriberRecord
	CreateSubscriber(ctx context.Context, in signalwire.SubscriberInput) (string, error)
	UpdateSubscriber(ctx context.Context, subscriberID string, in signalwire.SubscriberInput) error
	FetchSubscriberAddress(ctx context.Context, subscriberID string) string
	NotifyNewMember(ctx context.Context, callID, message string) error
}

// ClientFactory builds an API client for one set of credentials.
type ClientFactory func(projectID, authToken, spaceName string) SignalWireAPI

// DefaultClientFactory builds the real REST client.
func DefaultClientFactory(log *slog.Logger) ClientFactory {
	return func(projectID, authToken, spaceName string) SignalWireAPI {
		return signalwire.NewClient(projectID, authToken, spaceName, log)
	}
}

type Handlers struct {
	Sessions    *session.Manager
	Calls       *callinfo.Store
	Subscribers *subscribers.Directory
	Members     *members.Directory
	Users       *users.Store
	Router      *routing.Orchestrator
	NewClient   ClientFactory

	// PublicURL is the externally reachable base URL SignalWire calls
	// back on (webhooks, SWAIG, status callbacks).
	PublicURL string

	Log *slog.Logger
}

func (h Handlers) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

// Response envelope shared by all JSON endpoints. Webhook endpoints that
// must answer with a raw SWML document bypass it.

func apiSuccess(c *gin.Context, data gin.H) {
	body := gin.H{"success": true}
	for k, v := range data {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func apiError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": true, "message": message})
}

// clientFromSession builds an API client from the session credentials.
// Callers behind RequireCredentials always get a client.
func (h Handlers) clientFromSession(c *gin.Context) (SignalWireAPI, session.State, bool) {
	st := session.FromGin(c)
	if !st.HasCredentials() {
		apiError(c, http.StatusUnauthorized, "SignalWire credentials required")
		return nil, st, false
	}
	return h.NewClient(st.ProjectID, st.AuthToken, st.SpaceName), st, true
}

// --- Credentials ---

type credentialsRequest struct {
	ProjectID string `json:"project_id"`
	AuthToken string `json:"auth_token"`
	SpaceName string `json:"space_name"`
}

// SetCredentials validates the submitted SignalWire credentials with a
// real API round-trip before trusting them in the session.
func (h Handlers) SetCredentials(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ProjectID == "" || req.AuthToken == "" || req.SpaceName == "" {
		apiError(c, http.StatusBadRequest, "project_id, auth_token and space_name are required")
		return
	}

	client := h.NewClient(req.ProjectID, req.AuthToken, req.SpaceName)
	if err := client.VerifyCredentials(c.Request.Context()); err != nil {
		h.logger().Warn("credential verification failed", "project_id", req.ProjectID, "err", err)
		apiError(c, http.StatusUnauthorized, "invalid SignalWire credentials")
		return
	}

	err := h.Sessions.Update(c, func(st *session.State) {
		st.SetCredentials(req.ProjectID, req.AuthToken, req.SpaceName)
	})
	if err != nil {
		apiError(c, http.StatusInternalServerError, "session write failed")
		return
	}
	apiSuccess(c, gin.H{"project_id": req.ProjectID})
}

// --- SWML handler provisioning ---

type swmlHandlerRequest struct {
	HandlerID string `json:"handler_id"`
}

// UpsertSWMLHandler creates or updates the external SWML handler that
// points inbound calls at this service, then caches its id and audio
// destination in the session.
func (h Handlers) UpsertSWMLHandler(c *gin.Context) {
	client, st, ok := h.clientFromSession(c)
	if !ok {
		return
	}

	var req swmlHandlerRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	handlerID := req.HandlerID
	if handlerID == "" {
		handlerID = st.SWMLHandlerID
	}

	requestURL := h.PublicURL + "/api/swml"
	ctx := c.Request.Context()

	var handler signalwire.Handler
	var err error
	if handlerID != "" {
		// Confirm the handler still exists before updating; a stale
		// session id falls through to creation.
		if _, getErr := client.GetSWMLHandler(ctx, handlerID); getErr == nil {
			handler, err = client.UpdateSWMLHandler(ctx, handlerID, handlerName(), requestURL)
		} else {
			handlerID = ""
		}
	}
	if handlerID == "" {
		handler, err = client.CreateSWMLHandler(ctx, handlerName(), requestURL)
	}
	if err != nil {
		apiError(c, apiStatus(err), "SWML handler provisioning failed")
		return
	}

	addrs, err := client.HandlerAddresses(ctx, handler.ID)
	if err != nil {
		apiError(c, apiStatus(err), "handler address lookup failed")
		return
	}
	destination := addrs.AudioDestination()
	if destination == "" {
		apiError(c, http.StatusBadGateway, "handler has no audio address")
		return
	}

	if err := h.Sessions.Update(c, func(st *session.State) {
		st.SWMLHandlerID = handler.ID
		st.SWMLDestination = destination
	}); err != nil {
		apiError(c, http.StatusInternalServerError, "session write failed")
		return
	}
	apiSuccess(c, gin.H{"handler_id": handler.ID, "destination": destination})
}

func handlerName() string {
	return "livewire-" + uuid.NewString()[:8]
}

// apiStatus maps a client error to an HTTP status for the browser,
// defaulting to 502 since the failure came from the upstream API.
func apiStatus(err error) int {
	if apiErr, ok := err.(*signalwire.APIError); ok {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return http.StatusUnauthorized
		case http.StatusNotFound:
			return http.StatusNotFound
		}
	}
	return http.StatusBadGateway
}

// --- Widget config ---

// WidgetConfig hands the browser widget everything it needs to place a
// call: the handler's dialable address and a guest token scoped to it.
func (h Handlers) WidgetConfig(c *gin.Context) {
	client, st, ok := h.clientFromSession(c)
	if !ok {
		return
	}
	if st.SWMLHandlerID == "" {
		apiError(c, http.StatusBadRequest, "no SWML handler provisioned")
		return
	}

	ctx := c.Request.Context()
	addrs, err := client.HandlerAddresses(ctx, st.SWMLHandlerID)
	if err != nil || len(addrs.Data) == 0 {
		apiError(c, http.StatusBadGateway, "handler address lookup failed")
		return
	}
	token, err := client.CreateGuestToken(ctx, addrs.Data[0].ID)
	if err != nil {
		apiError(c, apiStatus(err), "guest token creation failed")
		return
	}
	apiSuccess(c, gin.H{"token": token, "destination": st.SWMLDestination})
}

// --- Health ---

func (h Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
