package model

import (
	"encoding/json"
	"time"
)

// Outbound message types understood by clients.
const (
	MsgSignal = "signal"
	MsgHold   = "hold"
	MsgHello  = "hello"
	MsgDebug  = "debug"
)

// Message is the outbound envelope: {"type":..., "data":...}.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SignalMessage wraps a Signal for the wire.
func SignalMessage(s Signal) Message { return Message{Type: MsgSignal, Data: s} }

// HoldMessage wraps a HoldRecord for the wire.
func HoldMessage(h HoldRecord) Message { return Message{Type: MsgHold, Data: h} }

// JSON returns the encoded message (ignoring errors; all payloads are plain structs).
func (m Message) JSON() []byte {
	b, _ := json.Marshal(m)
	return b
}

// Hello is sent once to every client right after it connects.
type Hello struct {
	Type       string   `json:"type"`
	ServerTime string   `json:"server_time"`
	Pairs      []string `json:"pairs"`
	Owner      string   `json:"owner"`
}

// NewHello builds the greeting for a new connection.
func NewHello(now time.Time, pairs []string, owner string) Hello {
	return Hello{Type: MsgHello, ServerTime: now.UTC().Format(ISOLayout), Pairs: pairs, Owner: owner}
}

// ISOLayout is the millisecond ISO-8601 layout used for all wire timestamps.
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"
