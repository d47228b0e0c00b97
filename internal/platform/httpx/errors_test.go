package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
)

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		typ    string
	}{
		{ledger.Invalidf("amount must be positive"), http.StatusBadRequest, "invalid_argument"},
		{ledger.NotFoundf("account 7"), http.StatusNotFound, "not_found"},
		{ledger.Conflictf("account has movements"), http.StatusConflict, "conflict"},
		{ledger.ErrAlreadySettled, http.StatusConflict, "already_settled"},
		{ledger.ErrInsufficientFunds, http.StatusConflict, "insufficient_funds"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tc.typ, body.Type)
		require.Equal(t, tc.err.Error(), body.Detail)
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, ledger.Internal("insert movement", errors.New(`relation "movements" does not exist`)))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Empty(t, body.Detail)
	require.NotContains(t, rec.Body.String(), "movements")
}
