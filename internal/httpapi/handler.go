package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"reputation-engine/pkg/errutil"
	"reputation-engine/services/badge"
	"reputation-engine/services/reputation"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("httpapi",
	fx.Provide(ProvideMux),
)

type HandlerParams struct {
	fx.In
	Reputation *reputation.Service
	Badges     *badge.Service
}

// ProvideMux returns the read-only HTTP surface consumed by admin and
// reporting screens. Writes go through the library API, never through HTTP.
func ProvideMux(p HandlerParams) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		accounts, err := p.Reputation.Leaderboard(r.Context(), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"leaderboard": accounts})
	})

	mux.HandleFunc("GET /v1/users/{id}/statistics", func(w http.ResponseWriter, r *http.Request) {
		stats, err := p.Reputation.Statistics(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	mux.HandleFunc("GET /v1/users/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		events, err := p.Reputation.History(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events})
	})

	mux.HandleFunc("GET /v1/users/{id}/badges", func(w http.ResponseWriter, r *http.Request) {
		awards, err := p.Badges.UserAwards(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"badges": awards})
	})

	mux.HandleFunc("GET /v1/badges", func(w http.ResponseWriter, r *http.Request) {
		defs, err := p.Badges.Definitions(r.Context(), false)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"badges": defs})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	var base errutil.BaseError
	if errors.As(err, &base) {
		writeJSON(w, base.Status().HTTPCode(), base.JSON())
		return
	}

	zap.L().Error("unhandled error in http handler", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error": map[string]any{"code": errutil.StatusInternal, "message": "internal error"},
	})
}
