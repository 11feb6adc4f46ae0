package gateway

import (
	"encoding/json"
	"strconv"
	"time"

	"binarysignal/internal/model"
)

// Deliver fans msg out to every local client as a sequenced envelope:
//
//	{"type":"signal","data":{...},"seq":N,"ts":"..."}
//
// The envelope is kept in the replay buffer so reconnecting clients can
// catch up with ?last_seq=N.
func (h *Hub) Deliver(msg model.Message) {
	data, err := json.Marshal(msg.Data)
	if err != nil {
		h.log.Error("encode broadcast", "type", msg.Type, "error", err)
		return
	}
	now := h.now().UTC()

	// One lock across seq, replay and fan-out keeps every client's stream in seq order.
	h.mu.Lock()
	h.seq++
	buf := buildEnvelope(msg.Type, data, now, h.seq)
	h.replay.Push(h.seq, buf)
	for client := range h.clients {
		select {
		case client.send <- buf:
		default:
		}
	}
	h.mu.Unlock()

	if h.observer != nil {
		h.observer.ObserveBroadcast(msg.Type)
	}
}

// buildEnvelope hand-crafts the broadcast JSON so data is embedded without a
// second marshal pass. msgType is one of the fixed model.Msg* constants.
func buildEnvelope(msgType string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(msgType)+len(data)+96)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, msgType...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, model.ISOLayout)
	buf = append(buf, `"}`...)
	return buf
}
