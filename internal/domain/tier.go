package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierCareerPlus Tier = "career_plus"
)

const (
	// FreeUsageLimit is the number of analyses a free user gets per window.
	FreeUsageLimit = 3
	// ResetWindow is the rolling period after which a free counter is zeroed.
	ResetWindow = 30 * 24 * time.Hour
)

// ParseTier validates a tier name.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierFree, TierPro, TierCareerPlus:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown tier %q", ErrInput, s)
	}
}

// Quota is a count that may be unlimited. It encodes to JSON as a number or
// the string "unlimited".
type Quota struct {
	Unlimited bool
	Count     int
}

func Unlimited() Quota { return Quota{Unlimited: true} }

func Limited(n int) Quota {
	if n < 0 {
		n = 0
	}
	return Quota{Count: n}
}

func (q Quota) String() string {
	if q.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", q.Count)
}

func (q Quota) MarshalJSON() ([]byte, error) {
	if q.Unlimited {
		return json.Marshal("unlimited")
	}
	return json.Marshal(q.Count)
}

func (q *Quota) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if !strings.EqualFold(s, "unlimited") {
			return fmt.Errorf("invalid quota %q", s)
		}
		*q = Unlimited()
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid quota: %w", err)
	}
	*q = Limited(n)
	return nil
}

// UsageLimit maps a tier to its per-window analysis limit. Unknown tiers get
// the free limit.
func UsageLimit(t Tier) Quota {
	switch t {
	case TierPro, TierCareerPlus:
		return Unlimited()
	default:
		return Limited(FreeUsageLimit)
	}
}

// PremiumAllowed reports whether a tier may use section rewrites and cover
// letters. The baseline analysis is gated by the quota ledger only.
func PremiumAllowed(t Tier) bool {
	return t == TierPro || t == TierCareerPlus
}

// Decision is the outcome of an entitlement check. It is never persisted.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
	Remaining Quota  `json:"remaining"`
}
