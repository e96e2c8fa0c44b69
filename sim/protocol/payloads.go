package protocol

import (
	"encoding/json"
	"time"
)

// StartSimulationRequest is the data of a start_simulation request.
// Dates are ISO 8601 strings as the server expects them on the wire.
type StartSimulationRequest struct {
	Symbols        []string `json:"symbols"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	InitialCapital float64  `json:"initial_capital"`
	Timeframe      string   `json:"timeframe"`
	WarmupBars     int      `json:"warmup_bars"`
	Adjusted       bool     `json:"adjusted"`
}

// SessionCreated is the data of the session_created reply.
type SessionCreated struct {
	SessionID string `json:"session_id"`
}

// Candle is one OHLCV bar.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// HistorySnapshot is the warmup data pushed once per session before ticks start.
type HistorySnapshot struct {
	SessionID string              `json:"session_id"`
	Timeframe string              `json:"timeframe"`
	Candles   map[string][]Candle `json:"candles"`
	Start     *time.Time          `json:"start"`
	End       *time.Time          `json:"end"`
	Count     int                 `json:"count"`
}

// Tick carries the next bar for each simulated symbol.
type Tick struct {
	SessionID string            `json:"session_id"`
	Candles   map[string]Candle `json:"candles"`
}

// ExecutionReport describes a fill (or rejection) for a previously accepted order.
type ExecutionReport struct {
	SessionID  string    `json:"session_id"`
	OrderID    string    `json:"order_id"`
	BatchID    string    `json:"batch_id,omitempty"`
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Status     string    `json:"status"`
	Commission float64   `json:"commission,omitempty"`
	FilledAt   time.Time `json:"filled_at"`
}

// Position is one open position inside an account snapshot.
type Position struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	AvgPrice float64 `json:"avg_price"`
}

// AccountSnapshot is the periodic account state push.
type AccountSnapshot struct {
	SessionID string     `json:"session_id"`
	Cash      float64    `json:"cash"`
	Equity    float64    `json:"equity"`
	Positions []Position `json:"positions"`
	AsOf      *time.Time `json:"as_of,omitempty"`
}

// SimulationEnd is the terminal lifecycle push for a session.
type SimulationEnd struct {
	SessionID   string  `json:"session_id"`
	Reason      string  `json:"reason,omitempty"`
	FinalEquity float64 `json:"final_equity,omitempty"`
	TotalTrades int     `json:"total_trades,omitempty"`
}

// SessionErrorData is the payload of a session_error push.
type SessionErrorData struct {
	SessionID string `json:"session_id,omitempty"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message,omitempty"`
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType selects the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// TimeInForce controls how long an order stays working.
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceIOC TimeInForce = "ioc"
)

// Order is one order inside an order_batch request.
type Order struct {
	OrderID     string      `json:"order_id"`
	Symbol      string      `json:"symbol"`
	Side        OrderSide   `json:"side"`
	Type        OrderType   `json:"type"`
	Quantity    int         `json:"quantity"`
	Price       float64     `json:"price,omitempty"`       // limit orders only
	StopLoss    float64     `json:"stop_loss,omitempty"`   // bracket leg
	TakeProfit  float64     `json:"take_profit,omitempty"` // bracket leg
	TimeInForce TimeInForce `json:"time_in_force"`
}

// OrderBatch is the data of an order_batch request.
type OrderBatch struct {
	SessionID string  `json:"session_id"`
	BatchID   string  `json:"batch_id"`
	Orders    []Order `json:"orders"`
}

// BatchAck is the server's acknowledgement of an order_batch.
// RejectedOrders maps order_id to a rejection reason; EstimatedFills maps
// order_id to a server-defined fill estimate.
type BatchAck struct {
	BatchID        string                     `json:"batch_id"`
	AcceptedOrders []string                   `json:"accepted_orders"`
	RejectedOrders map[string]string          `json:"rejected_orders"`
	EstimatedFills map[string]json.RawMessage `json:"estimated_fills"`
}

// CreateSessionRequest is the data of a create_session request.
type CreateSessionRequest struct {
	Symbols            []string       `json:"symbols"`
	StartDate          string         `json:"start_date"`
	EndDate            string         `json:"end_date"`
	InitialCapital     float64        `json:"initial_capital"`
	DataProvider       string         `json:"data_provider"`
	CommissionPerShare float64        `json:"commission_per_share"`
	SlippageBps        int            `json:"slippage_bps"`
	Metadata           map[string]any `json:"metadata"`
}

// SessionRef addresses an existing session in get_session/delete_session requests.
type SessionRef struct {
	SessionID string `json:"session_id"`
}

// SessionInfo is one entry of a session listing or status reply.
type SessionInfo struct {
	SessionID string     `json:"session_id"`
	Status    string     `json:"status,omitempty"`
	Symbols   []string   `json:"symbols,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// SessionList is the data of a list_sessions reply.
type SessionList struct {
	Sessions []SessionInfo `json:"sessions"`
}

// HealthStatus is the data of the health_status frame on /ws/health.
type HealthStatus struct {
	Status        string `json:"status"`
	ServerVersion string `json:"server_version"`
}
