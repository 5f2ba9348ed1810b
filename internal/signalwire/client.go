package signalwire

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to the SignalWire Fabric and Calling REST APIs on behalf
// of one browser session. Credentials are per-session, so clients are
// cheap to construct and never cached.
//
// Retry policy: 429 and 5xx responses plus transport errors are retried
// with exponential backoff, capped at maxRetries; everything else fails
// immediately with a typed APIError.

const (
	requestTimeout = 10 * time.Second
	maxRetries     = 3
	retryBaseWait  = 1 * time.Second
	retryMaxWait   = 8 * time.Second
)

// APIError is a failed SignalWire API call.
type APIError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("signalwire: %s (status %d)", e.Message, e.StatusCode)
	}
	return "signalwire: " + e.Message
}

func retryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

type Client struct {
	http      *resty.Client
	projectID string
	log       *slog.Logger
}

// NewClient builds a client bound to one space's credentials.
func NewClient(projectID, authToken, spaceName string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	h := resty.New().
		SetBaseURL(fmt.Sprintf("https://%s.signalwire.com/api", spaceName)).
		SetBasicAuth(projectID, authToken).
		SetTimeout(requestTimeout).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(retryBaseWait).
		SetRetryMaxWaitTime(retryMaxWait).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return retryableStatus(r.StatusCode())
		})
	return &Client{http: h, projectID: projectID, log: log}
}

// BaseURL is exposed for tests to point the client at a local server.
func (c *Client) SetBaseURL(u string) { c.http.SetBaseURL(u) }

// DisableRetries is exposed for tests that assert on failure paths.
func (c *Client) DisableRetries() { c.http.SetRetryCount(0) }

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return &APIError{Message: err.Error(), Retryable: true}
	}
	if resp.IsError() {
		msg := apiMessage(resp.Body())
		if msg == "" {
			msg = resp.Status()
		}
		c.log.Warn("signalwire api error", "method", method, "path", path, "status", resp.StatusCode(), "message", msg)
		return &APIError{StatusCode: resp.StatusCode(), Message: msg, Retryable: retryableStatus(resp.StatusCode())}
	}
	if out != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return &APIError{Message: "invalid response body: " + err.Error()}
		}
	}
	return nil
}

func apiMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return strings.TrimSpace(string(body))
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// --- SWML handlers ---

// Handler is an external SWML handler resource.
type Handler struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type handlerPayload struct {
	Name              string `json:"name"`
	PrimaryRequestURL string `json:"primary_request_url"`
}

func (c *Client) GetSWMLHandler(ctx context.Context, handlerID string) (Handler, error) {
	var h Handler
	err := c.do(ctx, resty.MethodGet, "/fabric/resources/external_swml_handlers/"+handlerID, nil, &h)
	return h, err
}

func (c *Client) CreateSWMLHandler(ctx context.Context, name, requestURL string) (Handler, error) {
	var h Handler
	err := c.do(ctx, resty.MethodPost, "/fabric/resources/external_swml_handlers", handlerPayload{Name: name, PrimaryRequestURL: requestURL}, &h)
	return h, err
}

func (c *Client) UpdateSWMLHandler(ctx context.Context, handlerID, name, requestURL string) (Handler, error) {
	var h Handler
	err := c.do(ctx, resty.MethodPatch, "/fabric/resources/external_swml_handlers/"+handlerID, handlerPayload{Name: name, PrimaryRequestURL: requestURL}, &h)
	if err != nil {
		return Handler{}, err
	}
	if h.ID == "" {
		h.ID = handlerID
	}
	return h, nil
}

func (c *Client) HandlerAddresses(ctx context.Context, handlerID string) (AddressList, error) {
	var out AddressList
	err := c.do(ctx, resty.MethodGet, "/fabric/resources/external_swml_handlers/"+handlerID+"/addresses", nil, &out)
	return out, err
}

// --- addresses ---

// Address is a routable fabric address with per-channel endpoints.
type Address struct {
	ID string `json:"id"`
	// Older API payloads use "channel" instead of "channels".
	Channels map[string]string `json:"channels"`
	Channel  map[string]string `json:"channel"`
}

type AddressList struct {
	Data []Address `json:"data"`
}

// AudioDestination extracts the audio endpoint from the first address,
// trimming any query string. Empty when no audio channel exists.
func (l AddressList) AudioDestination() string {
	if len(l.Data) == 0 {
		return ""
	}
	ch := l.Data[0].Channels
	if ch == nil {
		ch = l.Data[0].Channel
	}
	audio, ok := ch["audio"]
	if !ok {
		return ""
	}
	if i := strings.IndexByte(audio, '?'); i >= 0 {
		audio = audio[:i]
	}
	return audio
}

// --- subscribers ---

// Subscriber is the profile stored on the SignalWire side.
type Subscriber struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name"`
}

// SubscriberRecord wraps a subscriber with its resource id.
type SubscriberRecord struct {
	ID         string     `json:"id"`
	Subscriber Subscriber `json:"subscriber"`
}

type subscriberList struct {
	Data []SubscriberRecord `json:"data"`
}

func (c *Client) Subscribers(ctx context.Context) ([]SubscriberRecord, error) {
	var out subscriberList
	if err := c.do(ctx, resty.MethodGet, "/fabric/resources/subscribers", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// SubscriberByEmail scans the subscriber list for a case-insensitive
// email match. Returns nil when nothing matches or the list call fails;
// signup treats both the same way.
func (c *Client) SubscriberByEmail(ctx context.Context, email string) *SubscriberRecord {
	subs, err := c.Subscribers(ctx)
	if err != nil {
		c.log.Warn("subscriber lookup failed", "err", err)
		return nil
	}
	for i := range subs {
		if strings.EqualFold(subs[i].Subscriber.Email, email) {
			return &subs[i]
		}
	}
	return nil
}

// SubscriberInput is the create/update payload.
type SubscriberInput struct {
	Email       string `json:"email,omitempty"`
	Password    string `json:"password,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

func (c *Client) CreateSubscriber(ctx context.Context, in SubscriberInput) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, resty.MethodPost, "/fabric/resources/subscribers", in, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) UpdateSubscriber(ctx context.Context, subscriberID string, in SubscriberInput) error {
	return c.do(ctx, resty.MethodPut, "/fabric/resources/subscribers/"+subscriberID, in, nil)
}

func (c *Client) SubscriberAddresses(ctx context.Context, subscriberID string) (AddressList, error) {
	var out AddressList
	err := c.do(ctx, resty.MethodGet, "/fabric/resources/subscribers/"+subscriberID+"/addresses", nil, &out)
	return out, err
}

// FetchSubscriberAddress resolves the audio address a subscriber can be
// rung at. Best effort: a miss returns "" rather than an error because a
// login should not fail just because the directory entry is incomplete.
func (c *Client) FetchSubscriberAddress(ctx context.Context, subscriberID string) string {
	addrs, err := c.SubscriberAddresses(ctx, subscriberID)
	if err != nil {
		c.log.Warn("subscriber address fetch failed", "subscriber_id", subscriberID, "err", err)
		return ""
	}
	dest := addrs.AudioDestination()
	if dest == "" {
		c.log.Warn("no audio address for subscriber", "subscriber_id", subscriberID)
	}
	return dest
}

// CreateSubscriberToken issues a subscriber auth token (SAT) for the
// given reference, typically the agent's email.
func (c *Client) CreateSubscriberToken(ctx context.Context, reference string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, resty.MethodPost, "/fabric/subscribers/tokens", map[string]string{"reference": reference}, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// CreateGuestToken issues a widget token scoped to one address.
func (c *Client) CreateGuestToken(ctx context.Context, allowedAddressID string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	payload := map[string]any{"allowed_addresses": []string{allowedAddressID}}
	if err := c.do(ctx, resty.MethodPost, "/fabric/guests/tokens", payload, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// --- call control ---

type callCommand struct {
	ID      string         `json:"id"`
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// SendAIMessage injects a message into the AI agent's conversation.
func (c *Client) SendAIMessage(ctx context.Context, callID, role, text string) error {
	return c.do(ctx, resty.MethodPost, "/calling/calls", callCommand{
		ID:      callID,
		Command: "calling.ai_message",
		Params:  map[string]any{"role": role, "message_text": text},
	}, nil)
}

// UnholdAI resumes the AI agent after it was parked.
func (c *Client) UnholdAI(ctx context.Context, callID string) error {
	return c.do(ctx, resty.MethodPost, "/calling/calls", callCommand{
		ID:      callID,
		Command: "calling.ai_unhold",
	}, nil)
}

// NotifyNewMember tells the AI agent about a freshly created member and
// unparks it so the conversation can continue.
func (c *Client) NotifyNewMember(ctx context.Context, callID, message string) error {
	if err := c.SendAIMessage(ctx, callID, "system", message); err != nil {
		return err
	}
	return c.UnholdAI(ctx, callID)
}

// VerifyCredentials performs a lightweight authenticated call so the
// credential form can reject bad input up front.
func (c *Client) VerifyCredentials(ctx context.Context) error {
	_, err := c.Subscribers(ctx)
	return err
}
