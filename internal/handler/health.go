package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is a backing store that can report its liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
	kv Pinger
}

func NewHealthHandler(db, kv Pinger) *HealthHandler {
	return &HealthHandler{db: db, kv: kv}
}

// Health reports the liveness of both stores.  Load balancers take the
// instance out of rotation on 503.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	body := echo.Map{"status": "ok", "database": "ok", "redis": "ok"}
	status := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		body["database"], body["status"] = "down", "degraded"
		status = http.StatusServiceUnavailable
	}
	if err := h.kv.Ping(ctx); err != nil {
		body["redis"], body["status"] = "down", "degraded"
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, body)
}
