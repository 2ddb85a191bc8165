package httpx_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		shared.ErrNotFound:               http.StatusNotFound,
		shared.ErrValidation:             http.StatusUnprocessableEntity,
		shared.ErrImbalanced:             http.StatusUnprocessableEntity,
		shared.ErrSourceAlreadyPosted:    http.StatusConflict,
		shared.ErrInsufficientStock:      http.StatusConflict,
		shared.ErrConcurrentModification: http.StatusServiceUnavailable,
		errors.New("boom"):               http.StatusInternalServerError,
	}
	for err, want := range cases {
		require.Equal(t, want, httpx.StatusFor(fmt.Errorf("wrapped: %w", err)), err.Error())
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	httpx.RespondError(rr, errors.New("dsn=secret"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	var body httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Empty(t, body.Detail)

	rr = httptest.NewRecorder()
	httpx.RespondError(rr, shared.ErrNotFound)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, http.StatusNotFound, body.Status)
	require.Equal(t, "not found", body.Detail)
}
