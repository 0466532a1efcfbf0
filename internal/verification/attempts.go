package verification

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Attempts tracks the newest verification attempt per wallet address.
// Starting an attempt supersedes any attempt still running for the same
// address: the older one may finish and write its record, but its outcome is
// never published as the address's registrable result.
type Attempts struct {
	mu    sync.Mutex
	cache *cache.Cache
}

type attempt struct {
	id      string
	outcome *Outcome
}

func NewAttempts(ttl time.Duration) *Attempts {
	return &Attempts{cache: cache.New(ttl, 2*ttl)}
}

func attemptKey(address string) string {
	return strings.ToLower(address)
}

// Begin registers a new attempt for address and returns its id.
func (a *Attempts) Begin(address string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := uuid.NewString()
	a.cache.Set(attemptKey(address), &attempt{id: id}, cache.DefaultExpiration)
	return id
}

// Current reports whether id is still the newest attempt for address.
func (a *Attempts) Current(address, id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	x, found := a.cache.Get(attemptKey(address))
	return found && x.(*attempt).id == id
}

// Complete stores the outcome of attempt id. It returns false, leaving the
// newer attempt untouched, when id has been superseded or has expired.
func (a *Attempts) Complete(address, id string, outcome Outcome) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := attemptKey(address)
	x, found := a.cache.Get(key)
	if !found || x.(*attempt).id != id {
		return false
	}
	a.cache.Set(key, &attempt{id: id, outcome: &outcome}, cache.DefaultExpiration)
	return true
}

// Latest returns the outcome of the newest completed attempt for address.
func (a *Attempts) Latest(address string) (*Outcome, bool) {
	_, out, ok := a.LatestAttempt(address)
	return out, ok
}

// LatestAttempt is Latest plus the id of the attempt that produced the outcome.
func (a *Attempts) LatestAttempt(address string) (string, *Outcome, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	x, found := a.cache.Get(attemptKey(address))
	if !found {
		return "", nil, false
	}
	at := x.(*attempt)
	if at.outcome == nil {
		return "", nil, false
	}
	out := *at.outcome
	return at.id, &out, true
}

// Forget drops attempt id for address, e.g. after its outcome was registered.
// A newer attempt for the same address is left alone.
func (a *Attempts) Forget(address, id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := attemptKey(address)
	x, found := a.cache.Get(key)
	if !found || x.(*attempt).id != id {
		return false
	}
	a.cache.Delete(key)
	return true
}
