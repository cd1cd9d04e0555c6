// Package lock provides cross-process mutual exclusion for trigger
// deduplication. A lease is keyed by (workflow, trigger fingerprint) so
// redundant fires of the same logical event collapse to one execution.
package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrLockHeld signals that another holder owns the lease. It is a no-op
// signal, not a failure: the event has already been (or is being) handled.
var ErrLockHeld = errors.New("lock held by another holder")

// ErrLeaseLost signals that a renewal or release found the lease missing
// or owned by someone else, usually after an expiry.
var ErrLeaseLost = errors.New("lease lost")

// Lease is a time-bounded exclusive claim on a lock key.
type Lease struct {
	Key      string
	HolderID string
	TTL      time.Duration
}

// Manager is the cross-process lock boundary. Acquire must be a single
// atomic "insert lease if absent or expired" operation.
type Manager interface {
	// Acquire claims the key for holderID. Returns ErrLockHeld when a live
	// lease exists for a different holder.
	Acquire(ctx context.Context, key, holderID string, ttl time.Duration) (*Lease, error)

	// Renew extends a held lease by its TTL. Returns ErrLeaseLost when the
	// lease expired or was taken over.
	Renew(ctx context.Context, lease *Lease) error

	// Release drops the lease. Releasing a lost lease is not an error; a
	// crashed holder's lease simply expires.
	Release(ctx context.Context, lease *Lease) error
}

// Key builds the lock key for a workflow and trigger fingerprint.
func Key(workflowID, fingerprint string) string {
	return "strand:lock:" + workflowID + ":" + fingerprint
}

// Fingerprint hashes a trigger type and its disambiguating fields into a
// deterministic identifier for one logical trigger event.
func Fingerprint(triggerType string, fields ...string) string {
	h := sha256.New()
	h.Write([]byte(triggerType))

	for _, f := range fields {
		h.Write([]byte{0})
		h.Write([]byte(f))
	}

	return hex.EncodeToString(h.Sum(nil))[:32]
}

// CronFingerprint fingerprints a cron firing by its scheduled minute, so
// two schedulers firing for the same slot collapse to one execution.
func CronFingerprint(workflowID string, scheduledAt time.Time) string {
	return Fingerprint("cron", workflowID, scheduledAt.UTC().Truncate(time.Minute).Format(time.RFC3339))
}
