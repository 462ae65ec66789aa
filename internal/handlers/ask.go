package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"mailchat/internal/apperrors"
	"mailchat/internal/models"

	"github.com/labstack/echo/v4"
)

// Asker answers a mailbox question with citations. *chain.Chain implements it.
type Asker interface {
	Ask(ctx context.Context, req *models.AskRequest) (*models.AskResponse, error)
}

// AskHandler handles question answering requests against the mailbox index
// @Summary Ask a question about the mailbox
// @Description Answer a natural-language question from indexed emails, with citations back to the source messages
// @Tags chat
// @Accept json
// @Produce json
// @Param request body models.AskRequest true "Ask request"
// @Success 200 {object} models.AskResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/ask [post]
func AskHandler(asker Asker) echo.HandlerFunc {
	return func(c echo.Context) error {
		if asker == nil {
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
				Error: "Retrieval chain not available",
			})
		}

		var req models.AskRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: fmt.Sprintf("Invalid request body: %v", err),
				Code:  string(apperrors.KindInvalidRequest),
			})
		}

		// Log the shape of the request, never the question itself
		fmt.Printf("[ASK] Question received (session %q, %d chars)\n", req.SessionID, len(req.Question))

		resp, err := asker.Ask(c.Request().Context(), &req)
		if err != nil {
			fmt.Printf("[ASK] ERROR: %v\n", err)
			return errorJSON(c, err)
		}

		fmt.Printf("[ASK] Answered with %d citations (session %s)\n", len(resp.Citations), resp.SessionID)

		return c.JSON(http.StatusOK, resp)
	}
}

// errorJSON renders a typed error with its mapped status. Untyped errors
// become a plain 500.
func errorJSON(c echo.Context, err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return c.JSON(appErr.HTTPStatus(), models.ErrorResponse{
			Error: appErr.Error(),
			Code:  string(appErr.Kind),
		})
	}
	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error: err.Error(),
	})
}
