package http

import (
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/model"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/repository"
)

func listDeadLettersHandler(statusRepo repository.SyncStatusRepository, maxRetries int) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID := strings.TrimSpace(c.QueryParam("tenant_id"))

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		rows, err := statusRepo.ListDeadLetters(c.Request().Context(), tenantID, maxRetries, limit, offset)
		if err != nil {
			c.Logger().Errorf("dead-letter list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}

type retryReq struct {
	TenantID   string `json:"tenant_id"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// retryDeadLetterHandler zeroes the retry counter and marks the entity due,
// so the next reconciler scan picks it up. It does not replay inline; the
// worker owns index traffic.
func retryDeadLetterHandler(statusRepo repository.SyncStatusRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req retryReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.TenantID = strings.TrimSpace(req.TenantID)
		req.EntityType = strings.TrimSpace(req.EntityType)
		req.EntityID = strings.TrimSpace(req.EntityID)
		if req.TenantID == "" || req.EntityID == "" || !model.KnownEntityType(req.EntityType) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		key := model.EntityKey{
			TenantID:   req.TenantID,
			EntityType: req.EntityType,
			EntityID:   req.EntityID,
		}

		reset, err := statusRepo.ResetForRetry(c.Request().Context(), key)
		if err != nil {
			log.Errorf("dead-letter retry failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if !reset {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"requeued": true,
			"entity":   key,
		})
	}
}
