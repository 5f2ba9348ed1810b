package members

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Member is a customer profile created when a caller opts into
// registration during a call. Records are append-only: the id is
// immutable and nothing updates or deletes a member in this design.
type Member struct {
	MemberID      string `json:"member_id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone,omitempty"`
	Summary       string `json:"summary,omitempty"`
	PremiumMember bool   `json:"premium_member"`
}

const (
	memberIDMin = 100000
	memberIDMax = 999999
)

// Directory is the in-memory customer store. Keys are canonicalized to
// lower case at write time so lookups are case-insensitive without a
// linear scan.
type Directory struct {
	mu      sync.Mutex
	members map[string]Member
	rng     *rand.Rand
	log     *slog.Logger
}

func NewDirectory(log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}
	return &Directory{
		members: make(map[string]Member),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     log,
	}
}

// SeedSample installs the demo member used by the voice agent walkthrough.
// No-op when the directory already has entries.
func (d *Directory) SeedSample() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.members) > 0 {
		return
	}
	m := Member{
		MemberID:      "AB12345",
		FirstName:     "John",
		LastName:      "Doe",
		Email:         "john.doe@example.com",
		Phone:         "+1234567890",
		PremiumMember: true,
	}
	d.members[strings.ToLower(m.MemberID)] = m
	d.log.Info("seeded sample member", "member_id", m.MemberID)
}

// GenerateMemberID returns a fresh "M"-prefixed six-digit id that does not
// collide with any existing key. The id space is small enough that the
// check has to run against the live store, not be assumed probabilistically.
// The check-then-insert across GenerateMemberID and Add is not atomic; at
// demo concurrency that race is accepted.
func (d *Directory) GenerateMemberID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		id := fmt.Sprintf("M%d", memberIDMin+d.rng.Intn(memberIDMax-memberIDMin+1))
		if _, exists := d.members[strings.ToLower(id)]; !exists {
			return id
		}
	}
}

// Add stores a member record. It fails only when the member id is missing;
// business-field validation belongs to the caller.
func (d *Directory) Add(m Member) bool {
	if m.MemberID == "" {
		d.log.Warn("member add without member_id rejected")
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[strings.ToLower(m.MemberID)] = m
	d.log.Info("member added", "member_id", m.MemberID)
	return true
}

// Get looks up a member by id, case-insensitively.
func (d *Directory) Get(memberID string) (Member, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.members[strings.ToLower(memberID)]
	return m, ok
}

// Len reports how many members exist.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.members)
}
