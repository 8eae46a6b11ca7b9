// Package trust decides whether a request address belongs to one of an
// account's previously authenticated IPs, and maintains that list.
package trust

import (
	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/dinarexchange/dinar-auth/pkg/ipaddr"
)

type MatchType string

const (
	MatchExact  MatchType = "exact"
	MatchSubnet MatchType = "subnet"
	MatchNone   MatchType = "none"
)

// MatchResult points at the matching record inside the slice passed to
// Matcher.Match, so callers can update it in place.
type MatchResult struct {
	IsMatch bool
	Record  *models.TrustedIP
	Type    MatchType
}

// Matcher compares a request address against trusted records.
type Matcher struct {
	tolerance int
}

// NewMatcher returns a Matcher accepting IPv4 addresses in the same /24
// whose last octets differ by at most tolerance.
func NewMatcher(tolerance int) *Matcher {
	return &Matcher{tolerance: tolerance}
}

// Match returns the exact record for currentIP if present, otherwise the
// first record in stored order that is a subnet neighbour.
func (m *Matcher) Match(currentIP string, records []models.TrustedIP) MatchResult {
	if !ipaddr.IsValid(currentIP) {
		return MatchResult{Type: MatchNone}
	}

	for i := range records {
		if records[i].IP == currentIP {
			return MatchResult{IsMatch: true, Record: &records[i], Type: MatchExact}
		}
	}

	current, ok := ipaddr.Octets(currentIP)
	if !ok {
		return MatchResult{Type: MatchNone}
	}

	for i := range records {
		trusted, ok := ipaddr.Octets(records[i].IP)
		if !ok {
			continue
		}
		if current[0] != trusted[0] || current[1] != trusted[1] || current[2] != trusted[2] {
			continue
		}
		if absDiff(int(current[3]), int(trusted[3])) <= m.tolerance {
			return MatchResult{IsMatch: true, Record: &records[i], Type: MatchSubnet}
		}
	}

	return MatchResult{Type: MatchNone}
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
