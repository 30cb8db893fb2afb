package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type coded struct{ status int }

func (c coded) Error() string   { return "coded failure" }
func (c coded) StatusCode() int { return c.status }

func decode(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRenderError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{"plain error hides message", errors.New("db password leaked"), 500, "internal_error", "Internal Server Error"},
		{"status coder", coded{status: 400}, 400, "bad_request", "coded failure"},
		{"wrapped status coder", fmt.Errorf("ctx: %w", coded{status: 403}), 403, "forbidden", "ctx: coded failure"},
		{"http error", NewHTTPError(422, "bad input").WithCode("validation_failed"), 422, "validation_failed", "bad input"},
		{"nil", nil, 500, "internal_error", "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			RenderError(w, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			resp := decode(t, w)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantMessage, resp.Error.Message)
		})
	}
}

func TestRenderError_Details(t *testing.T) {
	w := httptest.NewRecorder()
	RenderError(w, NewHTTPError(http.StatusBadRequest, "invalid body").WithDetails(map[string]any{
		"fields": map[string]any{"amount": []any{"required"}},
	}))

	resp := decode(t, w)
	assert.Equal(t, map[string]any{"fields": map[string]any{"amount": []any{"required"}}}, resp.Error.Details)
}

func TestRenderInternalError_KeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewHTTPError(http.StatusInternalServerError, "Internal server error").Wrap(cause)
	assert.ErrorIs(t, err, cause)

	w := httptest.NewRecorder()
	RenderInternalError(w, cause)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode(t, w).Error.Message)
}

func TestRenderHelpers_DefaultMessages(t *testing.T) {
	w := httptest.NewRecorder()
	RenderUnauthorized(w, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Authentication required", decode(t, w).Error.Message)

	w = httptest.NewRecorder()
	RenderForbidden(w, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Access denied", decode(t, w).Error.Message)

	w = httptest.NewRecorder()
	RenderNotFound(w, "")
	assert.Equal(t, "not_found", decode(t, w).Error.Code)
}

func TestJSONAndNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, JSON(w, http.StatusOK, map[string]any{"ok": true}))
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	w = httptest.NewRecorder()
	NoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
