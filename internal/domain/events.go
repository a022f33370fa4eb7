package domain

import "time"

// TradeEvent records an order action that reached the exchange.
type TradeEvent struct {
	Action   string // "PLACE_ORDER", "CANCEL_ORDER", "CANCEL_ALL", "PLACE_OCO"
	Symbol   string
	Side     Side
	Type     OrderType
	Quantity string
	Price    string
	OrderID  int64
	Status   OrderStatus
	At       time.Time
}

// APICallEvent records a single outbound exchange call.
type APICallEvent struct {
	Endpoint string
	Method   string
	Params   map[string]string
	HTTPCode int
	Latency  time.Duration
	Err      string // empty on success
	At       time.Time
}

// ErrorEvent records a classified failure with free-form context.
type ErrorEvent struct {
	Kind    string // "validation", "fatal", "retry_exhausted", "transport"
	Message string
	Context map[string]string
	At      time.Time
}
