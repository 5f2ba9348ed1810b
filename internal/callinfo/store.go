package callinfo

import (
	"log/slog"
	"sync"
)

// Context binds a call to the SignalWire project that originated it.
// It is established by the inbound-call webhook and read by the routing
// orchestrator to scope subscriber lookups.
type Context struct {
	ProjectID string `json:"project_id"`
}

// Info is the caller-submitted data awaiting pickup by a human agent.
type Info struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Summary   string `json:"summary"`
}

type record struct {
	ctx  *Context
	info *Info
}

// Store keeps call context and caller info addressable by call id.
// Context and info live under the same key so that a status webhook can
// drop both with a single Remove, but info writes never destroy a
// previously stored context.
//
// Lookups on unknown call ids return the zero value and ok=false; no
// operation here ever fails for a missing key. Webhooks can be delivered
// twice or out of order and the store must shrug that off.
type Store struct {
	mu    sync.Mutex
	calls map[string]*record
	log   *slog.Logger
}

func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{calls: make(map[string]*record), log: log}
}

// SetContext upserts the project binding for a call. An empty call id is
// ignored; everything else succeeds.
func (s *Store) SetContext(callID, projectID string) {
	if callID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.calls[callID]
	if r == nil {
		r = &record{}
		s.calls[callID] = r
	}
	r.ctx = &Context{ProjectID: projectID}
	s.log.Info("call context set", "call_id", callID, "project_id", projectID)
}

// Context returns the project binding for a call, if any.
func (s *Store) Context(callID string) (Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.calls[callID]
	if r == nil || r.ctx == nil {
		return Context{}, false
	}
	return *r.ctx, true
}

// SetInfo stores caller info for a call. If info already exists the new
// fields are merged in field-wise: non-empty incoming fields overwrite,
// empty ones leave the stored value alone. Merge-not-replace is a hard
// contract here so a later partial write cannot erase earlier data.
func (s *Store) SetInfo(callID string, info Info) {
	if callID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.calls[callID]
	if r == nil {
		r = &record{}
		s.calls[callID] = r
	}
	if r.info == nil {
		cp := info
		r.info = &cp
	} else {
		if info.FirstName != "" {
			r.info.FirstName = info.FirstName
		}
		if info.LastName != "" {
			r.info.LastName = info.LastName
		}
		if info.Summary != "" {
			r.info.Summary = info.Summary
		}
	}
	s.log.Info("call info set", "call_id", callID)
}

// Info returns the caller info for a call, if any.
func (s *Store) Info(callID string) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.calls[callID]
	if r == nil || r.info == nil {
		return Info{}, false
	}
	return *r.info, true
}

// Has reports whether anything at all is stored for a call id.
func (s *Store) Has(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[callID] != nil
}

// CallIDs returns the currently tracked call ids in unspecified order.
func (s *Store) CallIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for id := range s.calls {
		out = append(out, id)
	}
	return out
}

// Remove deletes the whole record for a call. It returns false when the
// call is unknown, which keeps double-delivered disconnect webhooks a
// harmless no-op.
func (s *Store) Remove(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[callID]; !ok {
		s.log.Warn("remove of unknown call", "call_id", callID)
		return false
	}
	delete(s.calls, callID)
	s.log.Info("call removed", "call_id", callID)
	return true
}
