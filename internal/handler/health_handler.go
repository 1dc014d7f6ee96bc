package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// healthCheckTimeout はDB疎通確認の待ち時間。
const healthCheckTimeout = 2 * time.Second

// HealthChecker はデータベースの疎通を確認する。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type healthResponse struct {
	Status string `json:"status"`
}

// Health はサーバーとデータベースの状態を返す。
// GET /health
func Health(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()

			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, healthResponse{Status: "unavailable"})
				return
			}
		}

		render.JSON(w, r, healthResponse{Status: "ok"})
	}
}
