package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Devon-White/livewire/internal/callinfo"
	"github.com/Devon-White/livewire/internal/members"
	"github.com/Devon-White/livewire/internal/routing"
	"github.com/Devon-White/livewire/internal/session"
	"github.com/Devon-White/livewire/internal/swml"
)

// Call-flow endpoints: the inbound-call webhook, the SWAIG function
// dispatcher, the status callback and the dashboard reads. These are hit
// by SignalWire, not the browser, so they answer raw JSON documents
// rather than the success envelope where the protocol demands it.

type swmlWebhookRequest struct {
	Call struct {
		CallID    string `json:"call_id"`
		ProjectID string `json:"project_id"`
	} `json:"call"`
}

// InboundSWML answers the inbound-call webhook: bind the call to its
// project and hand the caller to the AI agent.
func (h Handlers) InboundSWML(c *gin.Context) {
	var req swmlWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Call.CallID == "" || req.Call.ProjectID == "" {
		apiError(c, http.StatusBadRequest, "call.call_id and call.project_id are required")
		return
	}

	h.Calls.SetContext(req.Call.CallID, req.Call.ProjectID)
	h.logger().Info("inbound call", "call_id", req.Call.CallID, "project_id", req.Call.ProjectID)
	c.JSON(http.StatusOK, swml.MainDocument(h.PublicURL))
}

// --- SWAIG dispatch ---

type swaigRequest struct {
	Function string `json:"function"`
	Argument struct {
		Parsed []map[string]any `json:"parsed"`
	} `json:"argument"`
	MetaData struct {
		CallID string `json:"call_id"`
	} `json:"meta_data"`
	CallID string `json:"call_id"`
}

func (r swaigRequest) args() map[string]any {
	if len(r.Argument.Parsed) > 0 {
		return r.Argument.Parsed[0]
	}
	return map[string]any{}
}

func (r swaigRequest) callID() string {
	if r.MetaData.CallID != "" {
		return r.MetaData.CallID
	}
	return r.CallID
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

type swaigAction map[string]any

func swaigRespond(c *gin.Context, response string, actions ...swaigAction) {
	body := gin.H{"response": response}
	if len(actions) > 0 {
		body["action"] = actions
	}
	c.JSON(http.StatusOK, body)
}

// SWAIG dispatches the AI agent's function calls.
func (h Handlers) SWAIG(c *gin.Context) {
	var req swaigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid json")
		return
	}
	log := h.logger()
	log.Info("swaig function", "function", req.Function, "call_id", req.callID())

	switch req.Function {
	case "verify_customer":
		h.swaigVerifyCustomer(c, req)
	case "create_member":
		// The form itself is submitted by the widget; the agent only
		// triggers showing it.
		swaigRespond(c, "A membership form has been sent to your screen. Let me know once you have filled it out.",
			swaigAction{"SWML": swml.MemberFormDocument()})
	case "send_user_info":
		h.swaigSendUserInfo(c, req)
	default:
		log.Warn("unknown swaig function", "function", req.Function)
		swaigRespond(c, "I'm sorry, I can't do that.")
	}
}

func (h Handlers) swaigVerifyCustomer(c *gin.Context, req swaigRequest) {
	memberID := stringArg(req.args(), "member_id")
	member, ok := h.Members.Get(memberID)
	if !ok {
		swaigRespond(c, fmt.Sprintf("I could not find a member with the ID %s. Could you double-check it?", memberID))
		return
	}

	if callID := req.callID(); callID != "" {
		h.Calls.SetInfo(callID, callinfo.Info{
			FirstName: member.FirstName,
			LastName:  member.LastName,
			Summary:   member.Summary,
		})
	}
	swaigRespond(c,
		fmt.Sprintf("Verified %s %s, member ID %s.", member.FirstName, member.LastName, member.MemberID),
		swaigAction{"SWML": swml.CustomerVerifiedDocument(member.FirstName, member.LastName)})
}

func (h Handlers) swaigSendUserInfo(c *gin.Context, req swaigRequest) {
	args := req.args()
	res := h.Router.Transfer(c.Request.Context(), routing.TransferRequest{
		CallID:    req.callID(),
		FirstName: stringArg(args, "first_name"),
		LastName:  stringArg(args, "last_name"),
		Summary:   stringArg(args, "summary"),
	})
	swaigRespond(c, res.Status, swaigAction{"SWML": res.Document})
}

// --- Status callback ---

type callStatusRequest struct {
	Params struct {
		SegmentID    string `json:"segment_id"`
		ConnectState string `json:"connect_state"`
	} `json:"params"`
}

// CallStatus reconciles transfer-segment status callbacks. Always 200:
// SignalWire retries non-2xx and the handling is idempotent anyway.
func (h Handlers) CallStatus(c *gin.Context) {
	var req callStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid json")
		return
	}
	h.Router.HandleCallStatus(c.Request.Context(), req.Params.SegmentID, req.Params.ConnectState)
	apiSuccess(c, nil)
}

// --- Dashboard read ---

// CallInfo returns the stored caller info for the agent dashboard.
func (h Handlers) CallInfo(c *gin.Context) {
	callID := c.Param("call_id")
	info, ok := h.Calls.Info(callID)
	if !ok {
		apiError(c, http.StatusNotFound, "no info for call")
		return
	}
	apiSuccess(c, gin.H{"call_id": callID, "info": info})
}

// --- Member creation (widget form submit) ---

type createMemberRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Summary   string `json:"summary"`
	CallID    string `json:"call_id"`
}

// CreateMember stores the signup-form submission as a new member and, when
// the originating call is known, tells the parked AI agent about it.
func (h Handlers) CreateMember(c *gin.Context) {
	var req createMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.FirstName == "" || req.LastName == "" || req.Email == "" {
		apiError(c, http.StatusBadRequest, "first_name, last_name and email are required")
		return
	}

	st := session.FromGin(c)
	memberID := h.Members.GenerateMemberID()
	if !h.Members.Add(members.Member{
		MemberID:      memberID,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		Phone:         req.Phone,
		Summary:       req.Summary,
		PremiumMember: true,
	}) {
		apiError(c, http.StatusInternalServerError, "member creation failed")
		return
	}

	callID, resolved := routing.ResolveCallID(
		routing.FromValue(req.CallID),
		routing.FromValue(st.CurrentCallID),
		routing.FromStore(h.Calls),
	)
	if resolved && st.HasCredentials() {
		client := h.NewClient(st.ProjectID, st.AuthToken, st.SpaceName)
		msg := fmt.Sprintf("The caller is now a member. Their member ID is %s. Confirm it back to them and continue.", memberID)
		if err := client.NotifyNewMember(c.Request.Context(), callID, msg); err != nil {
			// Member creation already happened; the agent just won't
			// hear about it automatically.
			h.logger().Warn("new-member notification failed", "call_id", callID, "err", err)
		}
		_ = h.Sessions.Update(c, func(st *session.State) { st.CurrentCallID = callID })
	} else if !resolved {
		h.logger().Warn("member created without resolvable call", "member_id", memberID)
	}

	apiSuccess(c, gin.H{"member_id": memberID})
}
