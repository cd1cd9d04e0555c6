package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryManager_AcquireExcludesOtherHolders(t *testing.T) {
	m := NewMemoryManager()

	lease, err := m.Acquire(t.Context(), "k", "holder-a", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lease)

	_, err = m.Acquire(t.Context(), "k", "holder-b", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	// The same holder re-acquiring is not contention.
	_, err = m.Acquire(t.Context(), "k", "holder-a", time.Minute)
	assert.NoError(t, err)
}

func TestMemoryManager_ExpiredLeaseIsTakeable(t *testing.T) {
	now := time.Now()
	m := NewMemoryManagerWithClock(func() time.Time { return now })

	_, err := m.Acquire(t.Context(), "k", "holder-a", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	lease, err := m.Acquire(t.Context(), "k", "holder-b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "holder-b", lease.HolderID)
}

func TestMemoryManager_RenewExtendsHeldLease(t *testing.T) {
	now := time.Now()
	m := NewMemoryManagerWithClock(func() time.Time { return now })

	lease, err := m.Acquire(t.Context(), "k", "holder-a", time.Minute)
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	require.NoError(t, m.Renew(t.Context(), lease))

	// Renewed at +30s for another minute; +80s is still inside the lease.
	now = now.Add(50 * time.Second)
	_, err = m.Acquire(t.Context(), "k", "holder-b", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestMemoryManager_RenewLostLease(t *testing.T) {
	now := time.Now()
	m := NewMemoryManagerWithClock(func() time.Time { return now })

	lease, err := m.Acquire(t.Context(), "k", "holder-a", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	assert.ErrorIs(t, m.Renew(t.Context(), lease), ErrLeaseLost)
}

func TestMemoryManager_ReleaseIsIdempotent(t *testing.T) {
	m := NewMemoryManager()

	lease, err := m.Acquire(t.Context(), "k", "holder-a", time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.Release(t.Context(), lease))
	require.NoError(t, m.Release(t.Context(), lease))

	_, err = m.Acquire(t.Context(), "k", "holder-b", time.Minute)
	assert.NoError(t, err)
}

func TestMemoryManager_ReleaseByNonHolderKeepsLease(t *testing.T) {
	m := NewMemoryManager()

	_, err := m.Acquire(t.Context(), "k", "holder-a", time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.Release(t.Context(), &Lease{Key: "k", HolderID: "holder-b"}))

	_, err = m.Acquire(t.Context(), "k", "holder-c", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestFingerprint_DeterministicAndDistinct(t *testing.T) {
	a := Fingerprint("webhook", "wf-1", "delivery-1")
	b := Fingerprint("webhook", "wf-1", "delivery-1")
	c := Fingerprint("webhook", "wf-1", "delivery-2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)

	// Field boundaries matter: ("ab", "c") must differ from ("a", "bc").
	assert.NotEqual(t, Fingerprint("webhook", "ab", "c"), Fingerprint("webhook", "a", "bc"))
}

func TestCronFingerprint_CollapsesWithinTheMinute(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)

	assert.Equal(t,
		CronFingerprint("wf-1", base),
		CronFingerprint("wf-1", base.Add(35*time.Second)),
	)
	assert.NotEqual(t,
		CronFingerprint("wf-1", base),
		CronFingerprint("wf-1", base.Add(time.Minute)),
	)
}
