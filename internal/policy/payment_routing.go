package policy

import "github.com/rafflio/platform/internal/domain"

// PaymentRoutingPolicy describes which payment methods can currently be used.
type PaymentRoutingPolicy struct {
	GatewayEnabled bool     `json:"gateway_enabled"`
	BankAccounts   int      `json:"bank_accounts"`
	BlockedMethods []string `json:"blocked_methods,omitempty"`
}

// RouteEvaluation holds the result of a routing check.
type RouteEvaluation struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// EvaluatePaymentRoute checks whether method can be used. Cash is only
// accepted for purchases registered by an administrator.
func EvaluatePaymentRoute(policy PaymentRoutingPolicy, method domain.PaymentMethod, adminOrigin bool) RouteEvaluation {
	if !method.Valid() {
		return RouteEvaluation{Allowed: false, Reason: "unknown payment method: " + string(method)}
	}

	for _, blocked := range policy.BlockedMethods {
		if blocked == string(method) {
			return RouteEvaluation{Allowed: false, Reason: "payment method blocked: " + string(method)}
		}
	}

	switch method {
	case domain.MethodMercadoPago:
		if !policy.GatewayEnabled {
			return RouteEvaluation{Allowed: false, Reason: "payment gateway not configured"}
		}
	case domain.MethodBankTransfer:
		if policy.BankAccounts == 0 {
			return RouteEvaluation{Allowed: false, Reason: "no bank accounts configured"}
		}
	case domain.MethodCash:
		if !adminOrigin {
			return RouteEvaluation{Allowed: false, Reason: "cash purchases are registered by staff"}
		}
	}

	return RouteEvaluation{Allowed: true}
}
