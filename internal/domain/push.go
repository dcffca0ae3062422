package domain

// PushEvent is delivered to subscribers of a purchase when its payment
// status changes.
type PushEvent struct {
	PurchaseID string `json:"purchaseId"`
	Status     string `json:"status"`
}

// GuardResult is the verdict of a request guard.
type GuardResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Guard   string `json:"guard,omitempty"` // which guard blocked
}
