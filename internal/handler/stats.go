package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/arqma/arqbot/internal/bot"
	"github.com/arqma/arqbot/internal/stats"
)

type errorResponse struct {
	Error  string   `json:"error"`
	Failed []string `json:"failed,omitempty"`
}

// Network serves one fresh network aggregation as JSON.
func Network(src bot.StatsSource, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns, err := src.FetchNetwork(r.Context())
		if err != nil {
			upstreamFailure(w, logger, "network stats unavailable", err)
			return
		}
		writeJSON(w, http.StatusOK, ns)
	}
}

// Pools serves the current pool list, largest hashrate first.
func Pools(src bot.StatsSource, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pools, err := src.FetchPools(r.Context())
		if err != nil {
			upstreamFailure(w, logger, "pool stats unavailable", err)
			return
		}
		if pools == nil {
			pools = []stats.PoolEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"pools": pools})
	}
}

func upstreamFailure(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	resp := errorResponse{Error: msg}
	var ae *stats.AggregateError
	if errors.As(err, &ae) {
		resp.Failed = ae.Failed
	}
	logger.Warn("stats request failed", "error", err)
	writeJSON(w, http.StatusBadGateway, resp)
}
