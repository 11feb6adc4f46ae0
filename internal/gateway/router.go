package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"binarysignal/internal/markethours"
	"binarysignal/internal/model"
	"binarysignal/internal/signalengine"
)

// Inbound request types.
const (
	ReqStart    = "start"
	ReqNext     = "next"
	ReqAutoPick = "autoPick"
	ReqDebug    = "reqDebug"
	ReqForce    = "force"
)

// DefaultHoldReason is sent when a start/next evaluation holds without a reason.
const DefaultHoldReason = "No confirmed opportunity now — hold"

type inbound struct {
	Type string `json:"type"`
	Mode string `json:"mode"`
	Pair string `json:"pair"`
}

// DebugInfo is the payload of a "debug" reply.
type DebugInfo struct {
	Watch      []string          `json:"watch"`
	ServerTime string            `json:"server_time"`
	Markets    map[string]string `json:"markets"`
}

// marketStatus describes the session state of every watched pair at now.
func marketStatus(watch []string, now time.Time) map[string]string {
	out := make(map[string]string, len(watch))
	for _, pair := range watch {
		out[pair] = markethours.StatusString(pair, now)
	}
	return out
}

// HandleInbound processes one client message and returns the encoded reply
// for that client, or nil when there is nothing to send back. Malformed and
// unknown messages are logged and ignored.
func (h *Hub) HandleInbound(ctx context.Context, raw []byte) []byte {
	var req inbound
	if err := json.Unmarshal(raw, &req); err != nil {
		h.log.Warn("ws msg parse err", slog.String("error", err.Error()))
		return nil
	}
	mode := model.ParseMode(req.Mode)

	switch req.Type {
	case ReqStart, ReqNext:
		pair := strings.TrimSpace(req.Pair)
		if pair == "" {
			watch := h.engine.WatchList()
			if len(watch) == 0 {
				return model.HoldMessage(model.HoldRecord{Reason: DefaultHoldReason}).JSON()
			}
			pair = watch[0]
		}
		out := h.engine.ComputeSignal(ctx, pair, mode)
		h.logFault(pair, out)
		return replyFor(pair, out).JSON()

	case ReqAutoPick:
		return h.engine.AutoPick(ctx, mode).Message().JSON()

	case ReqDebug:
		now, watch := h.now().UTC(), h.engine.WatchList()
		info := DebugInfo{Watch: watch, ServerTime: now.Format(model.ISOLayout), Markets: marketStatus(watch, now)}
		return model.Message{Type: model.MsgDebug, Data: info}.JSON()

	case ReqForce:
		pair := strings.TrimSpace(req.Pair)
		if pair == "" {
			return nil
		}
		out := h.engine.ForceSignal(ctx, pair, mode)
		h.logFault(pair, out)
		if out.OK() {
			h.BroadcastSignal(ctx, *out.Signal)
		}
		return nil

	default:
		h.log.Debug("ignoring unknown ws message", slog.String("type", req.Type))
		return nil
	}
}

// replyFor converts a start/next outcome into the client reply. Holds always
// name the pair that was evaluated.
func replyFor(pair string, out signalengine.Outcome) model.Message {
	if out.OK() {
		return model.SignalMessage(*out.Signal)
	}
	reason := DefaultHoldReason
	if out.Hold != nil && out.Hold.Reason != "" {
		reason = out.Hold.Reason
	}
	return model.HoldMessage(model.HoldRecord{Pair: pair, Reason: reason})
}

func (h *Hub) logFault(pair string, out signalengine.Outcome) {
	if out.Err != nil {
		h.log.Warn("pair evaluation fault", slog.String("pair", pair), slog.String("error", out.Err.Error()))
	}
}
