package handler

import (
	"encoding/json"
	"net/http"

	"github.com/arqma/arqbot/internal/bot"
)

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// Ready reports 200 while at least one chat platform is connected.
func Ready(s *bot.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		running := s.Running()
		if running == nil {
			running = []string{}
		}
		code, state := http.StatusOK, "ready"
		if len(running) == 0 {
			code, state = http.StatusServiceUnavailable, "not ready"
		}
		writeJSON(w, code, map[string]interface{}{"status": state, "platforms": running})
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
