package session

// Browser session state for the demo. The whole state rides in a signed
// HS256 cookie, so the server keeps no per-browser storage; losing the
// cookie just means re-entering credentials.

// State carries everything the core resolves from request context:
// SignalWire credentials, auth flags, the provisioned SWML handler, the
// active call and the logged-in subscriber email.
type State struct {
	ProjectID string `json:"project_id,omitempty"`
	AuthToken string `json:"auth_token,omitempty"`
	SpaceName string `json:"space_name,omitempty"`

	CredentialsOK bool `json:"credentials_ok,omitempty"`
	SubscriberOK  bool `json:"subscriber_ok,omitempty"`

	UserEmail string `json:"user_email,omitempty"`

	SWMLHandlerID   string `json:"swml_id,omitempty"`
	SWMLDestination string `json:"swml_destination,omitempty"`

	CurrentCallID string `json:"current_call_id,omitempty"`
}

// HasCredentials checks the flag AND all three credential values; a stale
// flag with a missing value does not count.
func (s State) HasCredentials() bool {
	return s.CredentialsOK && s.ProjectID != "" && s.AuthToken != "" && s.SpaceName != ""
}

// IsSubscriberLoggedIn reports whether a subscriber completed login.
func (s State) IsSubscriberLoggedIn() bool {
	return s.SubscriberOK && s.UserEmail != ""
}

// SetCredentials stores SignalWire credentials. All values must be
// non-empty or the state is left untouched.
func (s *State) SetCredentials(projectID, authToken, spaceName string) bool {
	if projectID == "" || authToken == "" || spaceName == "" {
		return false
	}
	s.ProjectID = projectID
	s.AuthToken = authToken
	s.SpaceName = spaceName
	s.CredentialsOK = true
	return true
}

// SetSubscriberLogin marks the session as logged in for the given email.
func (s *State) SetSubscriberLogin(email string) bool {
	if email == "" {
		return false
	}
	s.UserEmail = email
	s.SubscriberOK = true
	return true
}

// ClearSubscriberLogin drops the subscriber flags but keeps the
// SignalWire credentials and handler info.
func (s *State) ClearSubscriberLogin() {
	s.SubscriberOK = false
	s.UserEmail = ""
}
