package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"mailchat/internal/auth"
	"mailchat/internal/database"
	"mailchat/internal/models"

	"github.com/labstack/echo/v4"
)

// AdminLoginHandler handles admin authentication
// @Summary Admin login
// @Description Authenticate admin user and receive auth token
// @Tags admin
// @Accept json
// @Produce json
// @Param request body models.AdminAuthRequest true "Login credentials"
// @Success 200 {object} models.AdminAuthResponse
// @Failure 401 {object} models.AdminAuthResponse
// @Router /api/admin/login [post]
func AdminLoginHandler(authManager *auth.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.AdminAuthRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.AdminAuthResponse{
				Success: false,
				Error:   fmt.Sprintf("Invalid request body: %v", err),
			})
		}

		token, err := authManager.Authenticate(req.Username, req.Password)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, models.AdminAuthResponse{
				Success: false,
				Error:   "Invalid username or password",
			})
		}

		return c.JSON(http.StatusOK, models.AdminAuthResponse{
			Success: true,
			Token:   token,
		})
	}
}

// ListSessionsHandler handles listing chat sessions
// @Summary List chat sessions
// @Description Get a paginated list of chat sessions
// @Tags admin
// @Accept json
// @Produce json
// @Param limit query int false "Number of sessions per page" default(20)
// @Param offset query int false "Offset for pagination" default(0)
// @Success 200 {object} models.SessionListResponse
// @Failure 401 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Security BearerAuth
// @Router /api/admin/sessions [get]
func ListSessionsHandler(conversationService *database.ConversationService) echo.HandlerFunc {
	return func(c echo.Context) error {
		if conversationService == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"error": "Conversation store not available",
			})
		}

		// Get pagination parameters
		limit := 20 // default
		offset := 0 // default

		if limitStr := c.QueryParam("limit"); limitStr != "" {
			if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 100 {
				limit = parsed
			}
		}

		if offsetStr := c.QueryParam("offset"); offsetStr != "" {
			if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
				offset = parsed
			}
		}

		ctx := c.Request().Context()

		sessions, err := conversationService.GetSessions(ctx, limit, offset)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": fmt.Sprintf("Failed to get sessions: %v", err),
			})
		}

		// Ensure sessions is never nil
		if sessions == nil {
			sessions = []models.ChatSession{}
		}

		total, err := conversationService.GetSessionCount(ctx)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": fmt.Sprintf("Failed to get session count: %v", err),
			})
		}

		hasMore := offset+limit < total

		return c.JSON(http.StatusOK, models.SessionListResponse{
			Sessions: sessions,
			Total:    total,
			Limit:    limit,
			Offset:   offset,
			HasMore:  hasMore,
		})
	}
}

// GetSessionHandler handles getting a single session with all messages
// @Summary Get session details
// @Description Get full details of a chat session including all messages
// @Tags admin
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID (UUID)"
// @Success 200 {object} models.ChatSessionDetail
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /api/admin/sessions/{sessionId} [get]
func GetSessionHandler(conversationService *database.ConversationService) echo.HandlerFunc {
	return func(c echo.Context) error {
		if conversationService == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"error": "Conversation store not available",
			})
		}

		sessionID := c.Param("sessionId")
		if sessionID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "Session ID is required",
			})
		}

		sessionDetail, err := conversationService.GetSessionDetails(c.Request().Context(), sessionID)
		if err != nil {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": fmt.Sprintf("Session not found: %v", err),
			})
		}

		return c.JSON(http.StatusOK, sessionDetail)
	}
}
