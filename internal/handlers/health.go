package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"mailchat/internal/cache"
	"mailchat/internal/models"
	"mailchat/internal/vecstore"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
)

// vectorProbeKey caches the last vector backend probe so health polls
// cannot hammer the backend
const vectorProbeKey = "health:vector"

const vectorProbeTTL = 30 * time.Second

// HealthHandler handles basic health check requests
func HealthHandler(version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		response := models.HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Version:   version,
		}

		return c.JSON(http.StatusOK, response)
	}
}

// DBHealthHandler handles database health check requests
func DBHealthHandler(db *sqlx.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		response := models.DBHealthResponse{
			Status:    "unknown",
			Timestamp: time.Now().UTC(),
			Connected: false,
			Latency:   0,
		}

		// Check if database connection exists
		if db == nil {
			response.Status = "unhealthy"
			response.Error = "Database connection not initialized"
			return c.JSON(http.StatusServiceUnavailable, response)
		}

		// Measure database ping latency
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := db.PingContext(ctx)
		latency := time.Since(start)
		response.Latency = latency

		if err != nil {
			response.Status = "unhealthy"
			response.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, response)
		}

		// Test a simple query to ensure database is readable
		var count int
		err = db.Get(&count, "SELECT 1")
		if err != nil {
			response.Status = "unhealthy"
			response.Error = fmt.Sprintf("Database query failed: %v", err)
			return c.JSON(http.StatusServiceUnavailable, response)
		}

		response.Status = "healthy"
		response.Connected = true

		return c.JSON(http.StatusOK, response)
	}
}

// VectorHealthHandler handles vector repository health check requests.
// The probe outcome is cached for a short window; repeated polls serve
// the cached result instead of hitting the backend again.
func VectorHealthHandler(repo vecstore.Repository, backend string, probeCache *cache.Cache) echo.HandlerFunc {
	return func(c echo.Context) error {
		response := models.VectorHealthResponse{
			Status:    "unknown",
			Timestamp: time.Now().UTC(),
			Backend:   backend,
		}

		if repo == nil {
			response.Status = "unhealthy"
			response.Error = "Vector repository not initialized"
			return c.JSON(http.StatusServiceUnavailable, response)
		}

		probeErr, cached := "", false
		if probeCache != nil {
			if entry, found := probeCache.Get(vectorProbeKey); found {
				if msg, ok := entry.(string); ok {
					probeErr, cached = msg, true
				}
			}
		}

		if !cached {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := repo.HealthCheck(ctx); err != nil {
				probeErr = err.Error()
			}
			if probeCache != nil {
				probeCache.Set(vectorProbeKey, probeErr, vectorProbeTTL)
			}
		}

		if probeErr != "" {
			response.Status = "unhealthy"
			response.Error = probeErr
			return c.JSON(http.StatusServiceUnavailable, response)
		}

		response.Status = "healthy"
		response.Connected = true

		return c.JSON(http.StatusOK, response)
	}
}

// RootHandler handles requests to the root endpoint
func RootHandler(version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"service": "Mailchat API",
			"version": version,
			"status":  "running",
		})
	}
}
