package subscribers

import (
	"log/slog"
	"sync"
	"time"
)

// FallbackProject is the namespace used when no project id can be resolved
// from the caller's context. Offline beacons fired while the browser is
// tearing down arrive without session state; they land here instead of
// failing. Entries in this namespace are invisible to project-scoped reads.
const FallbackProject = "global"

// Entry describes one subscriber's presence within a project namespace.
// Address is only meaningful while Online is true.
type Entry struct {
	Address  string    `json:"address"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// Directory tracks which support agents are online per project and where
// to ring them. Entries are never hard-deleted; logout just flips them
// offline so LastSeen history survives.
type Directory struct {
	mu        sync.Mutex
	byProject map[string]map[string]Entry
	now       func() time.Time
	log       *slog.Logger
}

func NewDirectory(log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}
	return &Directory{
		byProject: make(map[string]map[string]Entry),
		now:       time.Now,
		log:       log,
	}
}

func (d *Directory) key(projectID string) string {
	if projectID == "" {
		return FallbackProject
	}
	return projectID
}

// SetActive marks a subscriber online and records its routable address.
// The project namespace is created lazily; re-login refreshes the address.
func (d *Directory) SetActive(projectID, subscriberID, address string) {
	key := d.key(projectID)
	d.mu.Lock()
	defer d.mu.Unlock()
	ns := d.byProject[key]
	if ns == nil {
		ns = make(map[string]Entry)
		d.byProject[key] = ns
	}
	ns[subscriberID] = Entry{Address: address, Online: true, LastSeen: d.now()}
	d.log.Info("subscriber active", "project_id", key, "subscriber_id", subscriberID, "address", address)
}

// SetInactive marks a subscriber offline. It returns false when the
// (project, subscriber) pair was never registered; a project id resolved
// differently than at SetActive time silently misses the entry, which is
// the documented edge case rather than an error.
func (d *Directory) SetInactive(projectID, subscriberID string) bool {
	key := d.key(projectID)
	d.mu.Lock()
	defer d.mu.Unlock()
	ns := d.byProject[key]
	e, ok := ns[subscriberID]
	if !ok {
		return false
	}
	e.Online = false
	e.LastSeen = d.now()
	ns[subscriberID] = e
	d.log.Info("subscriber inactive", "project_id", key, "subscriber_id", subscriberID)
	return true
}

// ActiveByProject returns the online subscribers for a project. An unknown
// project yields an empty map.
func (d *Directory) ActiveByProject(projectID string) map[string]Entry {
	key := d.key(projectID)
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]Entry)
	for id, e := range d.byProject[key] {
		if e.Online {
			out[id] = e
		}
	}
	return out
}

// Address returns the routable address for a subscriber regardless of its
// online flag. Used by diagnostics only; routing must go through
// ActiveByProject so offline entries are filtered.
func (d *Directory) Address(projectID, subscriberID string) (string, bool) {
	key := d.key(projectID)
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.byProject[key][subscriberID]
	if !ok {
		return "", false
	}
	return e.Address, true
}
