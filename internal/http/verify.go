package http

import (
	"errors"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/engine"
)

func verifyHandler(verifier *engine.Verifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := strings.TrimSpace(c.Param("token"))
		tenantID := strings.TrimSpace(c.QueryParam("tenant_id"))

		res, err := verifier.Verify(c.Request().Context(), tenantID, token)
		if err != nil {
			switch {
			case errors.Is(err, engine.ErrTenantRequired):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "tenant_id required"})
			case errors.Is(err, engine.ErrUnknownToken):
				return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown token"})
			}

			c.Logger().Errorf("verify failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, res)
	}
}
