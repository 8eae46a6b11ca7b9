package trust

import (
	"sort"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/dinarexchange/dinar-auth/pkg/ipaddr"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store applies trusted IP lifecycle changes to an in-memory account.
// Persisting the account is the caller's job.
type Store struct {
	maxIPs int
}

func NewStore(maxIPs int) *Store {
	return &Store{maxIPs: maxIPs}
}

// MaxIPs is the retention cap.
func (s *Store) MaxIPs() int {
	return s.maxIPs
}

// Add records a successful authentication from ip. An existing record is
// refreshed in place; a new one is appended and the list is trimmed to the
// maxIPs most recently used. Addresses that fail validation are never
// stored, but LastLoginIP is always updated.
func (s *Store) Add(acc *models.Account, ip, userAgent string, now time.Time) (added bool) {
	acc.LastLoginIP = ip
	if !ipaddr.IsValid(ip) {
		return false
	}

	var ua *string
	if userAgent != "" {
		ua = &userAgent
	}

	for i := range acc.TrustedIPs {
		if acc.TrustedIPs[i].IP == ip {
			acc.TrustedIPs[i].LastUsed = now
			if ua != nil {
				acc.TrustedIPs[i].UserAgent = ua
			}
			return false
		}
	}

	acc.TrustedIPs = append(acc.TrustedIPs, models.TrustedIP{
		ID:        primitive.NewObjectID(),
		IP:        ip,
		FirstSeen: now,
		LastUsed:  now,
		UserAgent: ua,
	})

	if len(acc.TrustedIPs) > s.maxIPs {
		sort.SliceStable(acc.TrustedIPs, func(i, j int) bool {
			return acc.TrustedIPs[i].LastUsed.Before(acc.TrustedIPs[j].LastUsed)
		})
		acc.TrustedIPs = acc.TrustedIPs[len(acc.TrustedIPs)-s.maxIPs:]
	}

	return true
}

// Remove deletes the record with the given id.
func (s *Store) Remove(acc *models.Account, recordID string) error {
	id, err := primitive.ObjectIDFromHex(recordID)
	if err != nil {
		return models.ErrTrustedIPNotFound
	}

	for i := range acc.TrustedIPs {
		if acc.TrustedIPs[i].ID == id {
			acc.TrustedIPs = append(acc.TrustedIPs[:i], acc.TrustedIPs[i+1:]...)
			return nil
		}
	}
	return models.ErrTrustedIPNotFound
}

// Clear empties the list and returns how many records were removed.
func (s *Store) Clear(acc *models.Account) int {
	n := len(acc.TrustedIPs)
	acc.TrustedIPs = []models.TrustedIP{}
	return n
}
