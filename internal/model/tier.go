package model

import (
	"fmt"
	"strings"
)

// Tier is a subscription plan.
type Tier string

// Plans.
const (
	TierFree     Tier = "FREE"
	TierPro      Tier = "PRO"
	TierBusiness Tier = "BUSINESS"
)

// ParseTier parses a tier name case-insensitively.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := tierLimits[t]; !ok {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierLimits[t]
	return ok
}

// Resource names a countable, plan-limited entity.
type Resource string

// Limited resources.
const (
	ResourceBankAccounts          Resource = "bank_accounts"
	ResourceRecurringTransactions Resource = "recurring_transactions"
)

// Limit is a per-tier quota. The zero value allows nothing; Unlimited is a distinct
// sentinel rather than a very large number.
type Limit struct {
	max       int
	unbounded bool
}

// Unlimited is the quota that never blocks.
var Unlimited = Limit{unbounded: true}

// LimitOf returns a finite quota of n.
func LimitOf(n int) Limit {
	if n < 0 {
		n = 0
	}
	return Limit{max: n}
}

// IsUnlimited reports whether the limit is the unbounded sentinel.
func (l Limit) IsUnlimited() bool {
	return l.unbounded
}

// Max returns the finite quota and false when the limit is unbounded.
func (l Limit) Max() (int, bool) {
	if l.unbounded {
		return 0, false
	}
	return l.max, true
}

// Allows reports whether one more item fits when count items already exist.
func (l Limit) Allows(count int) bool {
	return l.unbounded || count < l.max
}

func (l Limit) String() string {
	if l.unbounded {
		return "unlimited"
	}
	return fmt.Sprintf("%d", l.max)
}

var tierLimits = map[Tier]map[Resource]Limit{
	TierFree: {
		ResourceBankAccounts:          LimitOf(2),
		ResourceRecurringTransactions: LimitOf(10),
	},
	TierPro: {
		ResourceBankAccounts:          LimitOf(10),
		ResourceRecurringTransactions: LimitOf(100),
	},
	TierBusiness: {
		ResourceBankAccounts:          Unlimited,
		ResourceRecurringTransactions: Unlimited,
	},
}

// LimitFor returns the quota of resource on tier. Unknown tiers fall back to FREE;
// unknown resources on a known tier are not allowed at all.
func LimitFor(tier Tier, resource Resource) Limit {
	limits, ok := tierLimits[tier]
	if !ok {
		limits = tierLimits[TierFree]
	}
	return limits[resource]
}
