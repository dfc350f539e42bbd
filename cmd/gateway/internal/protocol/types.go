package protocol

import "github.com/naphucco/fintech-trading-platform/pkg/models"

// Inbound message types
const (
	TypeSubscribe   = "SUBSCRIBE_MARKET_DATA"
	TypeUnsubscribe = "UNSUBSCRIBE_MARKET_DATA"
	TypePlaceOrder  = "PLACE_ORDER"
	TypeHeartbeat   = "HEARTBEAT"
	TypePing        = "PING"
)

// Outbound message types
const (
	TypeWelcome           = "WELCOME"
	TypeSubscribeAck      = "SUBSCRIBE_ACK"
	TypeUnsubscribeAck    = "UNSUBSCRIBE_ACK"
	TypeMarketData        = "MARKET_DATA"
	TypeOrderAck          = "ORDER_ACK"
	TypeOrderStatusUpdate = "ORDER_STATUS_UPDATE"
	TypeOrderFilled       = "ORDER_FILLED"
	TypeOrderRejected     = "ORDER_REJECTED"
	TypeOrderError        = "ORDER_ERROR"
	TypeHeartbeatAck      = "HEARTBEAT_ACK"
	TypePong              = "PONG"
	TypeError             = "ERROR"
)

// Order lifecycle statuses, shared with the audit stream contract.
const (
	StatusReceived     = models.StatusReceived
	StatusValidating   = models.StatusValidating
	StatusRiskChecking = models.StatusRiskChecking
	StatusSubmitted    = models.StatusSubmitted
	StatusFilled       = models.StatusFilled
	StatusRejected     = models.StatusRejected
	StatusError        = models.StatusError
)

// Order error codes
const (
	CodeInvalidOrderFormat    = "INVALID_ORDER_FORMAT"
	CodeRiskCheckFailed       = "RISK_CHECK_FAILED"
	CodeSymbolNotFound        = "SYMBOL_NOT_FOUND"
	CodeInsufficientLiquidity = "INSUFFICIENT_LIQUIDITY"
)

// errorMessages maps error codes to the human-readable strings pushed to clients.
var errorMessages = map[string]string{
	CodeInvalidOrderFormat:    "Order format is invalid",
	CodeRiskCheckFailed:       "Order rejected by risk management system",
	CodeSymbolNotFound:        "Trading symbol not found",
	CodeInsufficientLiquidity: "Not enough liquidity in the market",
}

// ErrorMessage resolves an order error code to its client-facing message.
func ErrorMessage(code string) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return "Unknown error occurred"
}

// Envelope is the inbound frame. Every frame carries a type discriminator;
// the remaining fields vary by message.
type Envelope struct {
	Type    string        `json:"type"`
	Symbols []string      `json:"symbols,omitempty"`
	Order   *OrderRequest `json:"order,omitempty"`
}

// OrderRequest is the client's view of an order. Quantity is a pointer so
// "absent" and "zero" can be told apart during validation.
type OrderRequest struct {
	Symbol     string   `json:"symbol"`
	Side       string   `json:"side,omitempty"` // BUY | SELL
	Quantity   *float64 `json:"quantity,omitempty"`
	LimitPrice *float64 `json:"limitPrice,omitempty"`
}

// Quote is the per-symbol payload of a MARKET_DATA message.
type Quote struct {
	Price  float64 `json:"price"`
	Change float64 `json:"change"` // % move since last tick
}

type Welcome struct {
	Type      string `json:"type"`
	ClientID  string `json:"clientId"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type SubscribeAck struct {
	Type              string   `json:"type"`
	SubscribedSymbols []string `json:"subscribedSymbols"`
	SubscribedCount   int      `json:"subscribedCount"`
	Timestamp         int64    `json:"timestamp"`
}

type UnsubscribeAck struct {
	Type                   string   `json:"type"`
	UnsubscribedSymbols    []string `json:"unsubscribedSymbols"`
	RemainingSubscriptions []string `json:"remainingSubscriptions"`
	Timestamp              int64    `json:"timestamp"`
}

// SnapshotMarketData is the out-of-band initial push sent once per subscribe
// request per symbol, marked so clients can tell it from the periodic batch.
type SnapshotMarketData struct {
	Type      string `json:"type"`
	Symbol    string `json:"symbol"`
	Data      Quote  `json:"data"`
	IsInitial bool   `json:"isInitial"`
	Timestamp int64  `json:"timestamp"`
}

// BatchMarketData is the periodic push containing one entry per subscribed symbol.
type BatchMarketData struct {
	Type      string           `json:"type"`
	Data      map[string]Quote `json:"data"`
	Timestamp int64            `json:"timestamp"`
}

type OrderAck struct {
	Type      string `json:"type"`
	OrderID   string `json:"orderId"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type OrderStatusUpdate struct {
	Type      string `json:"type"`
	OrderID   string `json:"orderId"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type OrderFilled struct {
	Type              string  `json:"type"`
	OrderID           string  `json:"orderId"`
	Status            string  `json:"status"`
	FilledPrice       float64 `json:"filledPrice"`
	FilledQuantity    float64 `json:"filledQuantity"`
	AveragePrice      float64 `json:"averagePrice"`
	TotalFilled       float64 `json:"totalFilled"`
	RemainingQuantity float64 `json:"remainingQuantity"`
	ExecutionTime     int64   `json:"executionTime"`
	Timestamp         int64   `json:"timestamp"`
}

type OrderRejected struct {
	Type            string `json:"type"`
	OrderID         string `json:"orderId"`
	Status          string `json:"status"`
	Reason          string `json:"reason"`
	SuggestedAction string `json:"suggestedAction"`
	RejectionTime   int64  `json:"rejectionTime"`
	Timestamp       int64  `json:"timestamp"`
}

type OrderError struct {
	Type         string `json:"type"`
	OrderID      string `json:"orderId"`
	Status       string `json:"status"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	Timestamp    int64  `json:"timestamp"`
}

type HeartbeatAck struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type Error struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Symbol    string `json:"symbol,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
