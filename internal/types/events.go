package types

import "time"

// EventType 表示对外发布的事件类型。
type EventType string

const (
	EventSignalProcessed EventType = "signal_processed"
	EventEmergencyPause  EventType = "emergency_pause"
)

// Event 封装通用事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SignalProcessed 在信号通过风控后发布。
type SignalProcessed struct {
	Pool        Pubkey    `json:"pool"`
	Token       Pubkey    `json:"token"`
	RiskScore   uint8     `json:"risk_score"`
	TradeAmount uint64    `json:"trade_amount"`
	Executed    bool      `json:"executed"`
	Timestamp   time.Time `json:"timestamp"`
}

// EmergencyPause 在管理员暂停交易时发布。
type EmergencyPause struct {
	Authority Pubkey    `json:"authority"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSignalProcessedEvent 根据决策记录构造事件。
func NewSignalProcessedEvent(d Decision) Event {
	return Event{
		Type:      EventSignalProcessed,
		Timestamp: d.Timestamp,
		Payload: SignalProcessed{
			Pool:        d.Pool,
			Token:       d.Token,
			RiskScore:   d.RiskScore,
			TradeAmount: d.TradeAmount,
			Executed:    d.Executed,
			Timestamp:   d.Timestamp,
		},
	}
}

// NewEmergencyPauseEvent 构造暂停事件。
func NewEmergencyPauseEvent(authority Pubkey, ts time.Time) Event {
	return Event{
		Type:      EventEmergencyPause,
		Timestamp: ts,
		Payload:   EmergencyPause{Authority: authority, Timestamp: ts},
	}
}
