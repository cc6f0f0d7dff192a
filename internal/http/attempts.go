package http

import (
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/model"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/repository"
)

// listAttemptsHandler serves per-tenant attempt history out of ClickHouse.
// With entity_type and entity_id present it narrows to one entity.
func listAttemptsHandler(attemptsRepo repository.AttemptsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID := strings.TrimSpace(c.QueryParam("tenant_id"))
		if tenantID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "tenant_id required"})
		}

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

		entityType := strings.TrimSpace(c.QueryParam("entity_type"))
		entityID := strings.TrimSpace(c.QueryParam("entity_id"))

		var (
			rows []model.SyncAttempt
			err  error
		)
		if entityType != "" && entityID != "" {
			if !model.KnownEntityType(entityType) {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid entity_type"})
			}
			rows, err = attemptsRepo.ListByEntity(c.Request().Context(), model.EntityKey{
				TenantID:   tenantID,
				EntityType: entityType,
				EntityID:   entityID,
			}, limit)
		} else {
			rows, err = attemptsRepo.ListByTenant(c.Request().Context(), tenantID, limit, offset)
		}
		if err != nil {
			c.Logger().Errorf("clickhouse attempts failed: %v", err)

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
