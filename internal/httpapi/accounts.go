package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Devon-White/livewire/internal/session"
	"github.com/Devon-White/livewire/internal/signalwire"
	"github.com/Devon-White/livewire/internal/users"
)

// Subscriber account endpoints. Signup provisions (or adopts) the
// SignalWire subscriber and records the local account; login flips the
// session flag and marks the agent online in the directory.

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name"`
}

func (h Handlers) Signup(c *gin.Context) {
	client, _, ok := h.clientFromSession(c)
	if !ok {
		return
	}

	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Email == "" || req.Password == "" {
		apiError(c, http.StatusBadRequest, "email and password are required")
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.FirstName + " " + req.LastName
	}

	ctx := c.Request.Context()
	input := signalwire.SubscriberInput{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DisplayName: req.DisplayName,
	}

	// Adopt an existing SignalWire subscriber with the same email rather
	// than failing; the space may have been provisioned out of band.
	var subscriberID string
	if existing := client.SubscriberByEmail(ctx, req.Email); existing != nil {
		subscriberID = existing.ID
		if err := client.UpdateSubscriber(ctx, subscriberID, input); err != nil {
			apiError(c, apiStatus(err), "subscriber update failed")
			return
		}
	} else {
		id, err := client.CreateSubscriber(ctx, input)
		if err != nil {
			apiError(c, apiStatus(err), "subscriber creation failed")
			return
		}
		subscriberID = id
	}

	hash, err := users.HashPassword(req.Password)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "password hashing failed")
		return
	}
	h.Users.Put(users.Account{
		Email:        req.Email,
		PasswordHash: hash,
		SubscriberID: subscriberID,
		DisplayName:  req.DisplayName,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	})

	apiSuccess(c, gin.H{"subscriber_id": subscriberID})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid json")
		return
	}

	acct, ok := h.Users.Get(req.Email)
	if !ok || !users.CheckPassword(acct.PasswordHash, req.Password) {
		apiError(c, http.StatusUnauthorized, "invalid email or password")
		return
	}

	st := session.FromGin(c)

	// Resolve the dialable address so transfers can ring this agent.
	// Best effort: without credentials or an address the agent is still
	// logged in, just not reachable.
	address := ""
	if st.HasCredentials() && acct.SubscriberID != "" {
		client := h.NewClient(st.ProjectID, st.AuthToken, st.SpaceName)
		address = client.FetchSubscriberAddress(c.Request.Context(), acct.SubscriberID)
	}
	if acct.SubscriberID != "" {
		h.Subscribers.SetActive(st.ProjectID, acct.SubscriberID, address)
	}

	if err := h.Sessions.Update(c, func(st *session.State) {
		st.SetSubscriberLogin(acct.Email)
	}); err != nil {
		apiError(c, http.StatusInternalServerError, "session write failed")
		return
	}
	apiSuccess(c, gin.H{
		"subscriber_id": acct.SubscriberID,
		"display_name":  acct.DisplayName,
	})
}

func (h Handlers) Logout(c *gin.Context) {
	st := session.FromGin(c)
	if acct, ok := h.Users.Get(st.UserEmail); ok && acct.SubscriberID != "" {
		h.Subscribers.SetInactive(st.ProjectID, acct.SubscriberID)
	}
	if err := h.Sessions.Update(c, func(st *session.State) {
		st.ClearSubscriberLogin()
	}); err != nil {
		apiError(c, http.StatusInternalServerError, "session write failed")
		return
	}
	apiSuccess(c, nil)
}

// CreateSAT issues a subscriber auth token for the logged-in agent's
// browser client.
func (h Handlers) CreateSAT(c *gin.Context) {
	client, st, ok := h.clientFromSession(c)
	if !ok {
		return
	}
	token, err := client.CreateSubscriberToken(c.Request.Context(), st.UserEmail)
	if err != nil {
		apiError(c, apiStatus(err), "token creation failed")
		return
	}
	apiSuccess(c, gin.H{"token": token})
}

// SubscriberOffline handles the browser's unload beacon. Beacons carry no
// body and may arrive after the session expired, so this never fails: an
// unknown subscriber or missing project is simply a no-op (the directory
// falls back to its shared namespace when the project is unknown).
func (h Handlers) SubscriberOffline(c *gin.Context) {
	subscriberID := c.Param("subscriber_id")
	if subscriberID == "" {
		apiSuccess(c, nil)
		return
	}
	st := session.FromGin(c)
	if !h.Subscribers.SetInactive(st.ProjectID, subscriberID) {
		h.logger().Info("offline beacon for unknown subscriber", "subscriber_id", subscriberID)
	}
	apiSuccess(c, nil)
}
