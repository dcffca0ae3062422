package reconcile

import "github.com/rafflio/platform/internal/domain"

// State is a step of the verification protocol.
type State string

const (
	StateVerifyingPurchase State = "verifying_purchase"
	StateVerifyingPayment  State = "verifying_payment"
	StateRetrying          State = "retrying"
	StateApproved          State = "approved"
	StateAlreadyConfirmed  State = "already_confirmed"
	StateRejected          State = "rejected"
	StateNotFound          State = "not_found"
	StateError             State = "error"
	StateManualRecovery    State = "manual_recovery"
)

// Terminal reports whether the engine stops after reaching s.
func (s State) Terminal() bool {
	switch s {
	case StateVerifyingPurchase, StateVerifyingPayment, StateRetrying:
		return false
	}
	return true
}

// User facing messages.
const (
	MsgNotFound         = "purchase not found"
	MsgVerifyError      = "error verifying payment"
	MsgRejected         = "payment was rejected"
	MsgValidationFailed = "failed payment validation"
	MsgPaymentNotFound  = "could not locate your payment"
)

// PaymentInfo carries the optional query parameters the gateway appends when
// it redirects the buyer back. The redirect status is informational only.
type PaymentInfo struct {
	PaymentID         string `json:"payment_id,omitempty"`
	Status            string `json:"status,omitempty"`
	ExternalReference string `json:"external_reference,omitempty"`
	MerchantOrderID   string `json:"merchant_order_id,omitempty"`
	PreferenceID      string `json:"preference_id,omitempty"`
}

// Snapshot is what the engine reports to its observer after each step.
type Snapshot struct {
	State     State            `json:"state"`
	Attempt   int              `json:"attempt"`
	Countdown int              `json:"countdown,omitempty"`
	Message   string           `json:"message,omitempty"`
	Numbers   []int            `json:"numbers,omitempty"`
	InitPoint string           `json:"init_point,omitempty"`
	Purchase  *domain.Purchase `json:"purchase,omitempty"`
}

// Observer receives every snapshot in order, on the engine's goroutine.
type Observer func(Snapshot)
