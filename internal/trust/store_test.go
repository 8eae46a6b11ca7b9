package trust

import (
	"fmt"
	"testing"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	current time.Time
}

func (c *clock) now() time.Time          { return c.current }
func (c *clock) advance(d time.Duration) { c.current = c.current.Add(d) }

type testStore struct {
	*Store
	clock *clock
}

func (ts testStore) Add(acc *models.Account, ip, ua string) bool {
	return ts.Store.Add(acc, ip, ua, ts.clock.now())
}

func newTestStore(start time.Time) (testStore, func(time.Duration)) {
	c := &clock{current: start}
	return testStore{Store: NewStore(10), clock: c}, c.advance
}

func TestStore_AddNew(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, _ := newTestStore(base)
	acc := &models.Account{}

	added := s.Add(acc, "203.0.113.5", "Mozilla/5.0")

	assert.True(t, added)
	require.Len(t, acc.TrustedIPs, 1)
	rec := acc.TrustedIPs[0]
	assert.Equal(t, "203.0.113.5", rec.IP)
	assert.Equal(t, base, rec.FirstSeen)
	assert.Equal(t, base, rec.LastUsed)
	require.NotNil(t, rec.UserAgent)
	assert.Equal(t, "Mozilla/5.0", *rec.UserAgent)
	assert.False(t, rec.ID.IsZero())
	assert.Equal(t, "203.0.113.5", acc.LastLoginIP)
}

func TestStore_AddExistingUpdatesInPlace(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, advance := newTestStore(base)
	acc := &models.Account{}

	s.Add(acc, "203.0.113.5", "old-agent")
	id := acc.TrustedIPs[0].ID
	advance(time.Hour)

	added := s.Add(acc, "203.0.113.5", "")

	assert.False(t, added)
	require.Len(t, acc.TrustedIPs, 1)
	assert.Equal(t, id, acc.TrustedIPs[0].ID)
	assert.Equal(t, base, acc.TrustedIPs[0].FirstSeen)
	assert.Equal(t, base.Add(time.Hour), acc.TrustedIPs[0].LastUsed)
	assert.Equal(t, "old-agent", *acc.TrustedIPs[0].UserAgent, "empty user agent must not overwrite")

	s.Add(acc, "203.0.113.5", "new-agent")
	assert.Equal(t, "new-agent", *acc.TrustedIPs[0].UserAgent)
}

func TestStore_AddInvalidIPOnlySetsLastLoginIP(t *testing.T) {
	s, _ := newTestStore(time.Now())
	acc := &models.Account{}

	assert.False(t, s.Add(acc, "unknown", "agent"))
	assert.Empty(t, acc.TrustedIPs)
	assert.Equal(t, "unknown", acc.LastLoginIP)
}

func TestStore_CapKeepsMostRecentlyUsed(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, advance := newTestStore(base)
	acc := &models.Account{}

	for i := 1; i <= 10; i++ {
		s.Add(acc, fmt.Sprintf("198.51.100.%d", i), "")
		advance(time.Minute)
	}
	// Refresh .1 so .2 becomes the least recently used
	s.Add(acc, "198.51.100.1", "")
	advance(time.Minute)

	s.Add(acc, "203.0.113.99", "")

	require.Len(t, acc.TrustedIPs, 10)
	ips := make(map[string]bool)
	for _, rec := range acc.TrustedIPs {
		ips[rec.IP] = true
	}
	assert.False(t, ips["198.51.100.2"], "least recently used record should be evicted")
	assert.True(t, ips["198.51.100.1"])
	assert.True(t, ips["203.0.113.99"])

	for i := 1; i < len(acc.TrustedIPs); i++ {
		assert.False(t, acc.TrustedIPs[i].LastUsed.Before(acc.TrustedIPs[i-1].LastUsed))
	}
}

func TestStore_Remove(t *testing.T) {
	s, _ := newTestStore(time.Now())
	acc := &models.Account{}
	s.Add(acc, "198.51.100.1", "")
	s.Add(acc, "198.51.100.2", "")
	target := acc.TrustedIPs[0].ID.Hex()

	require.NoError(t, s.Remove(acc, target))
	require.Len(t, acc.TrustedIPs, 1)
	assert.Equal(t, "198.51.100.2", acc.TrustedIPs[0].IP)

	assert.ErrorIs(t, s.Remove(acc, target), models.ErrNotFound)
	assert.ErrorIs(t, s.Remove(acc, target), models.ErrTrustedIPNotFound)
	assert.ErrorIs(t, s.Remove(acc, "not-an-object-id"), models.ErrNotFound)
	assert.Len(t, acc.TrustedIPs, 1)
}

func TestStore_Clear(t *testing.T) {
	s, _ := newTestStore(time.Now())
	acc := &models.Account{}
	s.Add(acc, "198.51.100.1", "")
	s.Add(acc, "198.51.100.2", "")
	s.Add(acc, "198.51.100.3", "")

	assert.Equal(t, 3, s.Clear(acc))
	assert.Empty(t, acc.TrustedIPs)
	assert.Equal(t, 0, s.Clear(acc))
}
