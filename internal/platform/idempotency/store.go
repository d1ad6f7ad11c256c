package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a finished response stays replayable.
const DefaultTTL = 24 * time.Hour

// State is the lifecycle of a claimed key.
type State string

const (
	StatePending State = "pending"
	StateDone    State = "done"
)

// Outcome reports what Claim found.
type Outcome int

const (
	// OutcomeFresh means the caller now owns the key and must run the request.
	OutcomeFresh Outcome = iota
	// OutcomeReplay means a finished response exists for the key.
	OutcomeReplay
	// OutcomeInFlight means another request holds the key.
	OutcomeInFlight
)

// Entry is the stored state of one key.
type Entry struct {
	Key         string
	Fingerprint string
	State       State
	Status      int
	Header      map[string][]string
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store persists key claims and finished responses.
type Store interface {
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Entry, error)
	Complete(ctx context.Context, entry Entry, now time.Time, ttl time.Duration) error
	Abandon(ctx context.Context, key string) error
}

// Sweeper is implemented by stores that need explicit removal of expired entries.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrKeyReused is returned when a key is presented with a different request body or route.
var ErrKeyReused = errors.New("idempotency: key reused for a different request")

// documentID hashes the scoped key so user input never shapes storage paths.
func documentID(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

func freshEntry(key, fingerprint string, now time.Time, ttl time.Duration) Entry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Entry{
		Key:         key,
		Fingerprint: fingerprint,
		State:       StatePending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// classify decides the outcome for an existing, unexpired entry.
func classify(existing Entry, fingerprint string) (Outcome, Entry, error) {
	if existing.Fingerprint != fingerprint {
		return OutcomeInFlight, Entry{}, ErrKeyReused
	}
	if existing.State == StateDone {
		return OutcomeReplay, existing, nil
	}
	return OutcomeInFlight, existing, nil
}

var hopByHopHeaders = map[string]struct{}{
	"Connection":        {},
	"Content-Length":    {},
	"Date":              {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},
	"Upgrade":           {},
}

func storableHeader(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		name = http.CanonicalHeaderKey(name)
		if _, skip := hopByHopHeaders[name]; skip {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
