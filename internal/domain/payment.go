package domain

import "time"

// Gateway payment statuses as reported by MercadoPago.
const (
	GatewayApproved  = "approved"
	GatewayPending   = "pending"
	GatewayInProcess = "in_process"
	GatewayRejected  = "rejected"
	GatewayCancelled = "cancelled"
	GatewayRefunded  = "refunded"
	GatewayFailed    = "failed"
)

// PaymentInfo is the subset of a gateway payment the system reads.
type PaymentInfo struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	StatusDetail      string     `json:"status_detail,omitempty"`
	ExternalReference string     `json:"external_reference"`
	TransactionAmount float64    `json:"transaction_amount"`
	DateApproved      *time.Time `json:"date_approved,omitempty"`
}

// Approved reports whether the gateway approved the payment.
func (p *PaymentInfo) Approved() bool { return p != nil && p.Status == GatewayApproved }

// Preference is a gateway checkout preference.
type Preference struct {
	ID                string `json:"id"`
	InitPoint         string `json:"init_point"`
	SandboxInitPoint  string `json:"sandbox_init_point"`
	ExternalReference string `json:"external_reference"`
}

// PreferenceItem is a line item of a checkout preference.
type PreferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

// PreferenceRequest is the input for creating a checkout preference.
type PreferenceRequest struct {
	Items             []PreferenceItem  `json:"items"`
	PayerEmail        string            `json:"-"`
	ExternalReference string            `json:"external_reference"`
	BackURLs          map[string]string `json:"back_urls,omitempty"`
	NotificationURL   string            `json:"notification_url,omitempty"`
}

// MerchantOrder groups the payments made against a preference.
type MerchantOrder struct {
	ID                int64         `json:"id"`
	PreferenceID      string        `json:"preference_id"`
	ExternalReference string        `json:"external_reference"`
	OrderStatus       string        `json:"order_status"`
	Payments          []PaymentInfo `json:"payments"`
}

// PurchaseStatusFor maps a gateway payment status to the purchase status the
// webhook writes: approved becomes paid, anything else failed.
func PurchaseStatusFor(gatewayStatus string) PurchaseStatus {
	if gatewayStatus == GatewayApproved {
		return PurchasePaid
	}
	return PurchaseFailed
}

// PushStatusFor maps a gateway status to the status forwarded over the push
// channel so subscribers see the same outcome that was persisted.
func PushStatusFor(gatewayStatus string) string {
	switch gatewayStatus {
	case GatewayApproved, GatewayRejected, GatewayCancelled:
		return gatewayStatus
	default:
		return GatewayFailed
	}
}

// IsRejection reports whether a status ends the payment unsuccessfully.
func IsRejection(status string) bool {
	switch status {
	case GatewayRejected, GatewayCancelled, GatewayFailed:
		return true
	}
	return false
}
