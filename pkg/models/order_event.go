package models

// Order lifecycle statuses, in pipeline order. FILLED, REJECTED and ERROR
// are terminal; nothing follows them for a given order id.
const (
	StatusReceived     = "RECEIVED"
	StatusValidating   = "VALIDATING"
	StatusRiskChecking = "RISK_CHECKING"
	StatusSubmitted    = "SUBMITTED_TO_MATCHING"
	StatusFilled       = "FILLED"
	StatusRejected     = "REJECTED"
	StatusError        = "ERROR"
)

// OrderEvent is one lifecycle transition of one order, as streamed on the
// audit topic.
type OrderEvent struct {
	OrderID   string  `json:"order_id"`
	ClientID  string  `json:"client_id"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side,omitempty"`
	Status    string  `json:"status"`
	ErrorCode string  `json:"error_code,omitempty"`
	Price     float64 `json:"price,omitempty"`
	Quantity  float64 `json:"quantity,omitempty"`
	Timestamp int64   `json:"timestamp"` // unix milli
}

var statusRank = map[string]int{
	StatusReceived:     1,
	StatusValidating:   2,
	StatusRiskChecking: 3,
	StatusSubmitted:    4,
	StatusFilled:       5,
	StatusRejected:     5,
	StatusError:        5,
}

// StatusRank orders lifecycle statuses for out-of-order detection; terminal
// states share the top rank. Unknown statuses rank lowest.
func StatusRank(status string) int {
	return statusRank[status]
}

// Terminal reports whether the status ends an order's lifecycle.
func (e OrderEvent) Terminal() bool {
	return statusRank[e.Status] == 5
}
