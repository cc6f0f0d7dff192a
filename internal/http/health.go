package http

import (
	"net/http"

	echo "github.com/labstack/echo/v4"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/config"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/repository"
)

// syncHealthHandler reports backlog health: 200 while the backlog is within
// the configured thresholds, 503 once pending rows pile up or the oldest
// unsynced entity ages past the limit. Dead letters never flip the probe;
// they need an operator, not a restart.
func syncHealthHandler(statusRepo repository.SyncStatusRepository, maxRetries int, cfg config.HealthConfig) echo.HandlerFunc {
	return func(c echo.Context) error {
		h, err := statusRepo.HealthCounts(c.Request().Context(), maxRetries)
		if err != nil {
			c.Logger().Errorf("health counts failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		status := "ok"
		code := http.StatusOK
		if (cfg.MaxPending > 0 && h.Pending > cfg.MaxPending) ||
			(cfg.MaxOldestAge > 0 && h.OldestUnsync > cfg.MaxOldestAge) {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		return c.JSON(code, map[string]any{
			"status":          status,
			"pending":         h.Pending,
			"failed":          h.Failed,
			"dead_letters":    h.DeadLetters,
			"oldest_unsynced": h.OldestUnsync.String(),
		})
	}
}
