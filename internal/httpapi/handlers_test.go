package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Devon-White/livewire/internal/callinfo"
	"github.com/Devon-White/livewire/internal/members"
	"github.com/Devon-White/livewire/internal/routing"
	"github.com/Devon-White/livewire/internal/session"
	"github.com/Devon-White/livewire/internal/signalwire"
	"github.com/Devon-White/livewire/internal/subscribers"
	"github.com/Devon-White/livewire/internal/users"
)

func init() { gin.SetMode(gin.TestMode) }

// stubAPI satisfies SignalWireAPI without network access.
type stubAPI struct {
	verifyErr error

	handler     signalwire.Handler
	getErr      error
	created     bool
	updated     bool
	addresses   signalwire.AddressList
	guestToken  string
	satToken    string
	existingSub *signalwire.SubscriberRecord
	newSubID    string
	subAddress  string

	notifiedCallID string
	notifyErr      error
}

func (s *stubAPI) VerifyCredentials(context.Context) error { return s.verifyErr }

func (s *stubAPI) GetSWMLHandler(_ context.Context, id string) (signalwire.Handler, error) {
	if s.getErr != nil {
		return signalwire.Handler{}, s.getErr
	}
	return signalwire.Handler{ID: id}, nil
}

func (s *stubAPI) CreateSWMLHandler(_ context.Context, name, _ string) (signalwire.Handler, error) {
	s.created = true
	h := s.handler
	h.Name = name
	return h, nil
}

func (s *stubAPI) UpdateSWMLHandler(_ context.Context, id, name, _ string) (signalwire.Handler, error) {
	s.updated = true
	return signalwire.Handler{ID: id, Name: name}, nil
}

func (s *stubAPI) HandlerAddresses(context.Context, string) (signalwire.AddressList, error) {
	return s.addresses, nil
}

func (s *stubAPI) CreateGuestToken(context.Context, string) (string, error) {
	return s.guestToken, nil
}

func (s *stubAPI) CreateSubscriberToken(context.Context, string) (string, error) {
	return s.satToken, nil
}

func (s *stubAPI) SubscriberByEmail(context.Context, string) *signalwire.SubscriberRecord {
	return s.existingSub
}

func (s *stubAPI) CreateSubscriber(context.Context, signalwire.SubscriberInput) (string, error) {
	return s.newSubID, nil
}

func (s *stubAPI) UpdateSubscriber(context.Context, string, signalwire.SubscriberInput) error {
	return nil
}

func (s *stubAPI) FetchSubscriberAddress(context.Context, string) string { return s.subAddress }

func (s *stubAPI) NotifyNewMember(_ context.Context, callID, _ string) error {
	s.notifiedCallID = callID
	return s.notifyErr
}

type env struct {
	h      Handlers
	api    *stubAPI
	router *gin.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mgr, err := session.NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	calls := callinfo.NewStore(nil)
	subs := subscribers.NewDirectory(nil)
	api := &stubAPI{}
	h := Handlers{
		Sessions:    mgr,
		Calls:       calls,
		Subscribers: subs,
		Members:     members.NewDirectory(nil),
		Users:       users.NewStore(nil),
		Router: &routing.Orchestrator{
			Calls:       calls,
			Subscribers: subs,
			PublicURL:   "https://demo.example.com",
		},
		NewClient: func(_, _, _ string) SignalWireAPI { return api },
		PublicURL: "https://demo.example.com",
	}

	r := gin.New()
	r.Use(mgr.Middleware())
	r.POST("/api/credentials", h.SetCredentials)
	r.POST("/api/swml_handler", session.RequireCredentials(), h.UpsertSWMLHandler)
	r.POST("/api/widget_config", session.RequireCredentials(), h.WidgetConfig)
	r.POST("/api/swml", h.InboundSWML)
	r.POST("/api/swaig", h.SWAIG)
	r.POST("/api/call_status", h.CallStatus)
	r.GET("/api/call_info/:call_id", session.RequireSubscriber(), h.CallInfo)
	r.POST("/api/create_member", h.CreateMember)
	r.POST("/api/create_sat", session.RequireCredentials(), session.RequireSubscriber(), h.CreateSAT)
	r.POST("/api/subscriber_offline/:subscriber_id", h.SubscriberOffline)
	r.POST("/api/signup", session.RequireCredentials(), h.Signup)
	r.POST("/api/login", h.Login)
	r.POST("/api/logout", h.Logout)
	return &env{h: h, api: api, router: r}
}

// sessionCookie signs a cookie for the given state so a request can carry
// an established session.
func (e *env) sessionCookie(t *testing.T, st session.State) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	if err := e.h.Sessions.Save(c, st); err != nil {
		t.Fatal(err)
	}
	for _, ck := range w.Result().Cookies() {
		if ck.Name == session.CookieName {
			return ck
		}
	}
	t.Fatal("no session cookie written")
	return nil
}

func (e *env) do(t *testing.T, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json response %q: %v", w.Body.String(), err)
	}
	return out
}

func credsState() session.State {
	st := session.State{}
	st.SetCredentials("proj1", "token", "space")
	return st
}

func TestSetCredentials_RejectsInvalid(t *testing.T) {
	e := newEnv(t)
	e.api.verifyErr = &signalwire.APIError{StatusCode: 401, Message: "bad credentials"}

	w := e.do(t, http.MethodPost, "/api/credentials",
		`{"project_id":"proj1","auth_token":"bad","space_name":"space"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestSetCredentials_SetsSession(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/credentials",
		`{"project_id":"proj1","auth_token":"token","space_name":"space"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var cookie *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == session.CookieName {
			cookie = ck
		}
	}
	if cookie == nil {
		t.Fatal("expected session cookie")
	}

	// The new cookie must satisfy the credential gate.
	e.api.addresses = signalwire.AddressList{Data: []signalwire.Address{{
		ID: "addr-1", Channels: map[string]string{"audio": "/ext/handler"},
	}}}
	e.api.handler = signalwire.Handler{ID: "h-1"}
	w = e.do(t, http.MethodPost, "/api/swml_handler", `{}`, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("credentialed request rejected: %d %s", w.Code, w.Body.String())
	}
}

func TestUpsertSWMLHandler_RequiresCredentials(t *testing.T) {
	e := newEnv(t)
	if w := e.do(t, http.MethodPost, "/api/swml_handler", `{}`, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", w.Code)
	}
}

func TestUpsertSWMLHandler_CreatesThenStoresDestination(t *testing.T) {
	e := newEnv(t)
	e.api.handler = signalwire.Handler{ID: "h-1"}
	e.api.addresses = signalwire.AddressList{Data: []signalwire.Address{{
		ID: "addr-1", Channels: map[string]string{"audio": "/ext/handler?channel=audio"},
	}}}

	w := e.do(t, http.MethodPost, "/api/swml_handler", `{}`, e.sessionCookie(t, credsState()))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["handler_id"] != "h-1" || body["destination"] != "/ext/handler" {
		t.Fatalf("unexpected body: %v", body)
	}
	if !e.api.created {
		t.Fatal("expected handler creation")
	}
}

func TestUpsertSWMLHandler_UpdatesExisting(t *testing.T) {
	e := newEnv(t)
	e.api.addresses = signalwire.AddressList{Data: []signalwire.Address{{
		ID: "addr-1", Channels: map[string]string{"audio": "/ext/handler"},
	}}}
	st := credsState()
	st.SWMLHandlerID = "h-known"

	w := e.do(t, http.MethodPost, "/api/swml_handler", `{}`, e.sessionCookie(t, st))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !e.api.updated || e.api.created {
		t.Fatalf("expected update path, got created=%v updated=%v", e.api.created, e.api.updated)
	}
}

func TestWidgetConfig_WithoutHandlerFails(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/widget_config", `{}`, e.sessionCookie(t, credsState()))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestInboundSWML_BindsContextAndReturnsDocument(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/swml",
		`{"call":{"call_id":"call1","project_id":"proj1"}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	cctx, ok := e.h.Calls.Context("call1")
	if !ok || cctx.ProjectID != "proj1" {
		t.Fatalf("expected call bound to proj1, got %+v ok=%v", cctx, ok)
	}
	if !strings.Contains(w.Body.String(), "sections") {
		t.Fatalf("expected a SWML document, got %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "/api/swaig") {
		t.Fatalf("expected SWAIG webhook URL in document")
	}
}

func TestInboundSWML_MissingFields(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/swml", `{"call":{"call_id":"call1"}}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSWAIG_SendUserInfoTransfersToActiveAgent(t *testing.T) {
	e := newEnv(t)
	e.h.Calls.SetContext("call1", "proj1")
	e.h.Subscribers.SetActive("proj1", "sub1", "addr1")

	w := e.do(t, http.MethodPost, "/api/swaig", `{
		"function": "send_user_info",
		"argument": {"parsed": [{"first_name":"Ada","last_name":"Lovelace","summary":"billing"}]},
		"meta_data": {"call_id": "call1"}
	}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode(t, w)
	if body["response"] != "Transferring to available agents" {
		t.Fatalf("unexpected response: %v", body["response"])
	}
	if !strings.Contains(w.Body.String(), "addr1") {
		t.Fatalf("expected transfer target in document: %s", w.Body.String())
	}
	info, ok := e.h.Calls.Info("call1")
	if !ok || info.FirstName != "Ada" {
		t.Fatalf("expected caller info stored, got %+v ok=%v", info, ok)
	}
}

func TestSWAIG_SendUserInfoNoAgents(t *testing.T) {
	e := newEnv(t)
	e.h.Calls.SetContext("call1", "proj1")

	w := e.do(t, http.MethodPost, "/api/swaig", `{
		"function": "send_user_info",
		"argument": {"parsed": [{"first_name":"Ada"}]},
		"meta_data": {"call_id": "call1"}
	}`, nil)
	if body := decode(t, w); body["response"] != "No agents available" {
		t.Fatalf("unexpected response: %v", body["response"])
	}
}

func TestSWAIG_VerifyCustomer(t *testing.T) {
	e := newEnv(t)
	e.h.Members.SeedSample()
	e.h.Calls.SetContext("call1", "proj1")

	w := e.do(t, http.MethodPost, "/api/swaig", `{
		"function": "verify_customer",
		"argument": {"parsed": [{"member_id":"ab12345"}]},
		"meta_data": {"call_id": "call1"}
	}`, nil)
	body := decode(t, w)
	resp, _ := body["response"].(string)
	if !strings.Contains(resp, "John") {
		t.Fatalf("expected verification response, got %q", resp)
	}
	info, _ := e.h.Calls.Info("call1")
	if info.FirstName != "John" || info.LastName != "Doe" {
		t.Fatalf("expected member info copied to call, got %+v", info)
	}

	w = e.do(t, http.MethodPost, "/api/swaig", `{
		"function": "verify_customer",
		"argument": {"parsed": [{"member_id":"ZZ99999"}]}
	}`, nil)
	if resp, _ := decode(t, w)["response"].(string); !strings.Contains(resp, "could not find") {
		t.Fatalf("expected not-found response, got %q", resp)
	}
}

func TestCallStatus_DisconnectRemovesCallOnce(t *testing.T) {
	e := newEnv(t)
	e.h.Calls.SetContext("call1", "proj1")

	payload := `{"params":{"segment_id":"call1","connect_state":"disconnected"}}`
	if w := e.do(t, http.MethodPost, "/api/call_status", payload, nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if e.h.Calls.Has("call1") {
		t.Fatal("expected call removed")
	}
	// Duplicate webhook delivery must still be a 200.
	if w := e.do(t, http.MethodPost, "/api/call_status", payload, nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", w.Code)
	}
}

func TestCallInfo_RequiresSubscriber(t *testing.T) {
	e := newEnv(t)
	e.h.Calls.SetInfo("call1", callinfo.Info{FirstName: "Ada"})

	if w := e.do(t, http.MethodGet, "/api/call_info/call1", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without login, got %d", w.Code)
	}

	st := session.State{}
	st.SetSubscriberLogin("agent@example.com")
	w := e.do(t, http.MethodGet, "/api/call_info/call1", "", e.sessionCookie(t, st))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w = e.do(t, http.MethodGet, "/api/call_info/ghost", "", e.sessionCookie(t, st)); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown call, got %d", w.Code)
	}
}

func TestCreateMember_NotifiesAgentOnResolvedCall(t *testing.T) {
	e := newEnv(t)
	e.h.Calls.SetContext("call1", "proj1")

	w := e.do(t, http.MethodPost, "/api/create_member",
		`{"first_name":"Ada","last_name":"Lovelace","email":"ada@example.com"}`,
		e.sessionCookie(t, credsState()))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	memberID, _ := decode(t, w)["member_id"].(string)
	if len(memberID) != 7 || memberID[0] != 'M' {
		t.Fatalf("unexpected member id %q", memberID)
	}
	if _, ok := e.h.Members.Get(memberID); !ok {
		t.Fatalf("member %s not stored", memberID)
	}
	// call1 is the only live call, so the store fallback resolves it.
	if e.api.notifiedCallID != "call1" {
		t.Fatalf("expected AI notification for call1, got %q", e.api.notifiedCallID)
	}
}

func TestCreateMember_MissingFields(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/create_member", `{"first_name":"Ada"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestLoginLogout_DirectoryPresence(t *testing.T) {
	e := newEnv(t)
	hash, _ := users.HashPassword("secret")
	e.h.Users.Put(users.Account{Email: "Agent@Example.com", PasswordHash: hash, SubscriberID: "sub1"})
	e.api.subAddress = "addr1"

	if w := e.do(t, http.MethodPost, "/api/login",
		`{"email":"agent@example.com","password":"wrong"}`, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", w.Code)
	}

	w := e.do(t, http.MethodPost, "/api/login",
		`{"email":"agent@example.com","password":"secret"}`, e.sessionCookie(t, credsState()))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	active := e.h.Subscribers.ActiveByProject("proj1")
	if entry, ok := active["sub1"]; !ok || entry.Address != "addr1" {
		t.Fatalf("expected sub1 active at addr1, got %v", active)
	}

	var cookie *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == session.CookieName {
			cookie = ck
		}
	}
	if w := e.do(t, http.MethodPost, "/api/logout", `{}`, cookie); w.Code != http.StatusOK {
		t.Fatalf("logout failed: %d", w.Code)
	}
	if len(e.h.Subscribers.ActiveByProject("proj1")) != 0 {
		t.Fatal("expected sub1 offline after logout")
	}
}

func TestLogin_WithoutCredentialsUsesFallbackNamespace(t *testing.T) {
	e := newEnv(t)
	hash, _ := users.HashPassword("secret")
	e.h.Users.Put(users.Account{Email: "agent@example.com", PasswordHash: hash, SubscriberID: "sub1"})

	w := e.do(t, http.MethodPost, "/api/login",
		`{"email":"agent@example.com","password":"secret"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if _, ok := e.h.Subscribers.ActiveByProject(subscribers.FallbackProject)["sub1"]; !ok {
		t.Fatal("expected fallback-namespace presence for credential-less login")
	}
}

func TestSignup_AdoptsExistingSubscriber(t *testing.T) {
	e := newEnv(t)
	e.api.existingSub = &signalwire.SubscriberRecord{
		ID:         "sub-existing",
		Subscriber: signalwire.Subscriber{Email: "agent@example.com"},
	}

	w := e.do(t, http.MethodPost, "/api/signup",
		`{"email":"agent@example.com","password":"secret","first_name":"Ada","last_name":"Lovelace"}`,
		e.sessionCookie(t, credsState()))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if decode(t, w)["subscriber_id"] != "sub-existing" {
		t.Fatal("expected existing subscriber to be adopted")
	}
	acct, ok := e.h.Users.Get("agent@example.com")
	if !ok || acct.SubscriberID != "sub-existing" {
		t.Fatalf("expected local account stored, got %+v ok=%v", acct, ok)
	}
	if !users.CheckPassword(acct.PasswordHash, "secret") {
		t.Fatal("stored hash does not verify")
	}
}

func TestCreateSAT_IssuesToken(t *testing.T) {
	e := newEnv(t)
	e.api.satToken = "sat-token"
	st := credsState()
	st.SetSubscriberLogin("agent@example.com")

	w := e.do(t, http.MethodPost, "/api/create_sat", `{}`, e.sessionCookie(t, st))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if decode(t, w)["token"] != "sat-token" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestSubscriberOffline_BeaconAlwaysSucceeds(t *testing.T) {
	e := newEnv(t)
	e.h.Subscribers.SetActive("", "sub1", "addr1")

	// No session at all, as after browser unload.
	if w := e.do(t, http.MethodPost, "/api/subscriber_offline/sub1", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(e.h.Subscribers.ActiveByProject(subscribers.FallbackProject)) != 0 {
		t.Fatal("expected sub1 offline in fallback namespace")
	}
	// Unknown subscriber is still a 200.
	if w := e.do(t, http.MethodPost, "/api/subscriber_offline/ghost", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown subscriber, got %d", w.Code)
	}
}
