// Package tiers buckets requested party sizes into the supported inventory tiers.
package tiers

import (
	"fmt"
	"sort"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/bookingerr"
)

// Base is the tier value of the default row used for tiers without an explicit override.
const Base = 0

var Default = Set{2, 4, 6, 8}

// Set is an ascending list of supported party-size tiers.
type Set []int

func New(sizes []int) (Set, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("at least one tier is required")
	}
	out := append(Set(nil), sizes...)
	sort.Ints(out)
	for i, s := range out {
		if s <= 0 {
			return nil, fmt.Errorf("tier %d must be positive", s)
		}
		if i > 0 && out[i-1] == s {
			return nil, fmt.Errorf("duplicate tier %d", s)
		}
	}
	return out, nil
}

func (s Set) Max() int {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

// RoundUp returns the smallest tier that seats partySize.
func (s Set) RoundUp(partySize int) (int, error) {
	if partySize <= 0 {
		return 0, bookingerr.Validation("party size must be at least 1 (got %d)", partySize)
	}
	for _, t := range s {
		if partySize <= t {
			return t, nil
		}
	}
	return 0, bookingerr.CapacityExhausted("party size %d exceeds the largest supported table size of %d", partySize, s.Max())
}

// Contains reports whether tier is a configured tier or the base tier.
func (s Set) Contains(tier int) bool {
	if tier == Base {
		return true
	}
	for _, t := range s {
		if t == tier {
			return true
		}
	}
	return false
}

// WithBase lists the base tier followed by every configured tier.
func (s Set) WithBase() []int {
	out := make([]int, 0, len(s)+1)
	out = append(out, Base)
	return append(out, s...)
}
