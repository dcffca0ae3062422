package policy

// PurchaseLimitPolicy caps how many tickets a single purchase and a single
// buyer may hold in one raffle. Zero means unlimited.
type PurchaseLimitPolicy struct {
	MaxPerPurchase int `json:"max_per_purchase"`
	MaxPerBuyer    int `json:"max_per_buyer"`
}

// DefaultPurchaseLimits returns the default limits (100 per purchase, no per-buyer cap).
func DefaultPurchaseLimits() PurchaseLimitPolicy {
	return PurchaseLimitPolicy{
		MaxPerPurchase: 100,
		MaxPerBuyer:    0,
	}
}

// LimitEvaluation holds the result of a purchase limits check.
type LimitEvaluation struct {
	Allowed       bool   `json:"allowed"`
	BreachedLimit string `json:"breached_limit,omitempty"`
	LimitValue    int    `json:"limit_value,omitempty"`
	Requested     int    `json:"requested,omitempty"`
}

// EvaluatePurchaseLimits checks a requested ticket count against the policy.
// available is the raffle's current count of available tickets and
// heldByBuyer the tickets already committed to the buyer's open purchases.
func EvaluatePurchaseLimits(policy PurchaseLimitPolicy, ticketCount, available, heldByBuyer int) LimitEvaluation {
	if ticketCount <= 0 {
		return LimitEvaluation{Allowed: false, BreachedLimit: "ticket_count", Requested: ticketCount}
	}

	if policy.MaxPerPurchase > 0 && ticketCount > policy.MaxPerPurchase {
		return LimitEvaluation{
			Allowed:       false,
			BreachedLimit: "per_purchase",
			LimitValue:    policy.MaxPerPurchase,
			Requested:     ticketCount,
		}
	}

	// Pool capacity
	if ticketCount > available {
		return LimitEvaluation{
			Allowed:       false,
			BreachedLimit: "availability",
			LimitValue:    available,
			Requested:     ticketCount,
		}
	}

	if policy.MaxPerBuyer > 0 && heldByBuyer+ticketCount > policy.MaxPerBuyer {
		return LimitEvaluation{
			Allowed:       false,
			BreachedLimit: "per_buyer",
			LimitValue:    policy.MaxPerBuyer,
			Requested:     heldByBuyer + ticketCount,
		}
	}

	return LimitEvaluation{Allowed: true}
}
