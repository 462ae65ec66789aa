package handlers

import (
	"fmt"
	"net/http"

	"mailchat/internal/analytics"
	"mailchat/internal/models"

	"github.com/labstack/echo/v4"
)

// AnalyticsHandler returns analytics summary for a given period
// @Summary Get analytics summary
// @Description Get analytics summary for a specified time period (today, yesterday, last_7_days, last_30_days)
// @Tags admin
// @Accept json
// @Produce json
// @Param period query string false "Time period (today, yesterday, last_7_days, last_30_days)" default(yesterday)
// @Success 200 {object} models.AnalyticsResponse
// @Failure 401 {object} map[string]string
// @Failure 500 {object} models.AnalyticsResponse
// @Security BearerAuth
// @Router /api/admin/analytics [get]
func AnalyticsHandler(analyticsService *analytics.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		if analyticsService == nil {
			return c.JSON(http.StatusServiceUnavailable, models.AnalyticsResponse{
				Success: false,
				Error:   "Analytics not available",
			})
		}

		period := c.QueryParam("period")
		if period == "" {
			period = "yesterday"
		}

		fmt.Printf("[ANALYTICS] Fetching analytics summary for period: %s\n", period)

		summary, err := analyticsService.GetSummary(c.Request().Context(), period)
		if err != nil {
			fmt.Printf("[ANALYTICS] ERROR: Failed to get analytics summary: %v\n", err)
			return c.JSON(http.StatusInternalServerError, models.AnalyticsResponse{
				Success: false,
				Error:   fmt.Sprintf("Failed to get analytics summary: %v", err),
			})
		}

		fmt.Printf("[ANALYTICS] ✅ Analytics summary retrieved successfully\n")
		return c.JSON(http.StatusOK, models.AnalyticsResponse{
			Success: true,
			Summary: summary,
		})
	}
}
