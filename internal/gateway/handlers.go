package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"binarysignal/internal/model"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers the WebSocket endpoint, the debug REST endpoints
// and, when staticDir is set, the static frontend.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, staticDir string) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("ws upgrade error", "error", err)
			return
		}
		lastSeq, _ := strconv.ParseInt(r.URL.Query().Get("last_seq"), 10, 64)
		hub.HandleWSRequest(conn, lastSeq)
	})

	mux.HandleFunc("GET /debug/status", func(w http.ResponseWriter, r *http.Request) {
		now, watch := hub.now().UTC(), hub.engine.WatchList()
		hub.writeJSON(w, map[string]any{
			"ok":          true,
			"server_time": now.Format(model.ISOLayout),
			"watch":       watch,
			"markets":     marketStatus(watch, now),
			"clients":     hub.ClientCount(),
		})
	})

	// {pair...} so unescaped pairs like /debug/force/EUR/USD route too.
	mux.HandleFunc("GET /debug/force/{pair...}", func(w http.ResponseWriter, r *http.Request) {
		pair := strings.TrimSpace(r.PathValue("pair"))
		if pair == "" {
			hub.writeJSON(w, map[string]any{"ok": false, "err": "pair required"})
			return
		}
		out := hub.engine.ForceSignal(r.Context(), pair, model.ParseMode(r.URL.Query().Get("mode")))
		hub.logFault(pair, out)
		if !out.OK() {
			hub.writeJSON(w, map[string]any{"ok": false, "err": "no-signal"})
			return
		}
		hub.BroadcastSignal(r.Context(), *out.Signal)
		hub.writeJSON(w, map[string]any{"ok": true, "forced": out.Signal})
	})

	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
}

func (h *Hub) writeJSON(w http.ResponseWriter, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("write json response", "error", err)
	}
}
