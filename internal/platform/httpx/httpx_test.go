package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func TestRespondErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{shared.Validation("journal.unbalanced", "x"), http.StatusUnprocessableEntity, "journal.unbalanced"},
		{shared.NotFound("journal.not_found", "x"), http.StatusNotFound, "journal.not_found"},
		{shared.Conflict("journal.version", "x"), http.StatusConflict, "journal.version"},
		{shared.Consistency("balance.drift", "x"), http.StatusInternalServerError, "balance.drift"},
		{errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		RespondError(rec, req, nil, tc.err)
		require.Equal(t, tc.status, rec.Code)
		if tc.code != "" {
			require.Contains(t, rec.Body.String(), tc.code)
		}
	}
}

func TestTenantFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	_, err := TenantFromRequest(req)
	require.ErrorIs(t, err, shared.ErrValidation)

	req.Header.Set(HeaderCompany, "3")
	req.Header.Set(HeaderBranch, "4")
	req.Header.Set(HeaderActor, "9")
	tenant, err := TenantFromRequest(req)
	require.NoError(t, err)
	require.Equal(t, shared.Tenant{CompanyID: 3, BranchID: 4, ActorID: 9}, tenant)

	req.Header.Set(HeaderBranch, "abc")
	_, err = TenantFromRequest(req)
	require.ErrorIs(t, err, shared.ErrValidation)
}

type sample struct {
	Name string `json:"name" validate:"required"`
}

func TestDecodeJSONValidates(t *testing.T) {
	var s sample
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"name":""}`))
	require.ErrorIs(t, DecodeJSON(req, &s), shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"name":"ok"}`))
	require.NoError(t, DecodeJSON(req, &s))
	require.Equal(t, "ok", s.Name)

	req = httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"other":1}`))
	require.ErrorIs(t, DecodeJSON(req, &s), shared.ErrValidation)
}
