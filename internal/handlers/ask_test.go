package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mailchat/internal/apperrors"
	"mailchat/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAsker struct {
	resp *models.AskResponse
	err  error
	last *models.AskRequest
}

func (s *stubAsker) Ask(ctx context.Context, req *models.AskRequest) (*models.AskResponse, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func postJSON(e *echo.Echo, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAskHandler(t *testing.T) {
	t.Run("returns the answer with citations", func(t *testing.T) {
		asker := &stubAsker{
			resp: &models.AskResponse{
				Answer:    "The invoice total was $1,200. [1]",
				SessionID: "session-1",
				Retrieved: 3,
				Citations: []models.Citation{
					{MessageID: "m1", ChunkID: "m1#0", Subject: "Invoice #42"},
				},
			},
		}

		e := echo.New()
		c, rec := postJSON(e, "/api/ask", `{"question":"What was the invoice total?","session_id":"session-1"}`)

		err := AskHandler(asker)(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var response models.AskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, "The invoice total was $1,200. [1]", response.Answer)
		assert.Len(t, response.Citations, 1)
		assert.Equal(t, "Invoice #42", response.Citations[0].Subject)

		require.NotNil(t, asker.last)
		assert.Equal(t, "What was the invoice total?", asker.last.Question)
		assert.Equal(t, "session-1", asker.last.SessionID)
	})

	t.Run("passes retrieval filters through", func(t *testing.T) {
		asker := &stubAsker{resp: &models.AskResponse{SessionID: "s"}}

		e := echo.New()
		c, rec := postJSON(e, "/api/ask",
			`{"question":"q","labels":["INBOX"],"from":"billing@acme.com","after":"2024-01-01","before":"2024-06-30","k":8}`)

		require.NoError(t, AskHandler(asker)(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		require.NotNil(t, asker.last)
		assert.Equal(t, []string{"INBOX"}, asker.last.Labels)
		assert.Equal(t, "billing@acme.com", asker.last.From)
		assert.Equal(t, "2024-01-01", asker.last.After)
		assert.Equal(t, "2024-06-30", asker.last.Before)
		assert.Equal(t, 8, asker.last.K)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		asker := &stubAsker{resp: &models.AskResponse{}}

		e := echo.New()
		c, rec := postJSON(e, "/api/ask", `{"question": not-json`)

		require.NoError(t, AskHandler(asker)(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var response models.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, string(apperrors.KindInvalidRequest), response.Code)
		assert.Nil(t, asker.last)
	})

	t.Run("nil chain answers 503", func(t *testing.T) {
		e := echo.New()
		c, rec := postJSON(e, "/api/ask", `{"question":"q"}`)

		require.NoError(t, AskHandler(nil)(c))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("maps typed errors to their status", func(t *testing.T) {
		tests := []struct {
			name           string
			err            error
			expectedStatus int
			expectedCode   string
		}{
			{
				name:           "invalid request",
				err:            apperrors.InvalidRequest("question is required"),
				expectedStatus: http.StatusBadRequest,
				expectedCode:   "invalid_request",
			},
			{
				name:           "repository outage",
				err:            apperrors.RepositoryUnavailable(errors.New("dial tcp: refused")),
				expectedStatus: http.StatusServiceUnavailable,
				expectedCode:   "repository_unavailable",
			},
			{
				name:           "provider failure",
				err:            apperrors.TransientProvider("chat completion", errors.New("rate limited")),
				expectedStatus: http.StatusBadGateway,
				expectedCode:   "transient_provider_error",
			},
			{
				name:           "untyped error",
				err:            errors.New("boom"),
				expectedStatus: http.StatusInternalServerError,
				expectedCode:   "",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				asker := &stubAsker{err: tt.err}

				e := echo.New()
				c, rec := postJSON(e, "/api/ask", `{"question":"q"}`)

				require.NoError(t, AskHandler(asker)(c))
				assert.Equal(t, tt.expectedStatus, rec.Code)

				var response models.ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
				assert.Equal(t, tt.expectedCode, response.Code)
				assert.NotEmpty(t, response.Error)
			})
		}
	})
}
