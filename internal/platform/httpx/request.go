package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Tenant and retry headers set by the upstream gateway.
const (
	HeaderCompany     = "X-Company-ID"
	HeaderBranch      = "X-Branch-ID"
	HeaderActor       = "X-Actor-ID"
	HeaderIdempotency = "Idempotency-Key"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrBadRequest marks malformed payloads.
var ErrBadRequest = shared.Validation("request.malformed", "malformed request")

// DecodeJSON decodes the request body into target and runs struct validation.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return ErrBadRequest.Wrap(err)
	}
	if err := validate.Struct(target); err != nil {
		return shared.Validation("request.invalid", "request validation failed").Wrap(err)
	}
	return nil
}

// TenantFromRequest reads the tenant headers. The branch is optional here; services enforce it.
func TenantFromRequest(r *http.Request) (shared.Tenant, error) {
	company, err := headerInt(r, HeaderCompany)
	if err != nil {
		return shared.Tenant{}, err
	}
	branch, err := headerInt(r, HeaderBranch)
	if err != nil {
		return shared.Tenant{}, err
	}
	actor, err := headerInt(r, HeaderActor)
	if err != nil {
		return shared.Tenant{}, err
	}
	t := shared.Tenant{CompanyID: company, BranchID: branch, ActorID: actor}
	return t, t.Validate()
}

// IdempotencyKey returns the trimmed Idempotency-Key header.
func IdempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderIdempotency))
}

// PathID parses an int64 chi URL parameter.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validation("request.invalid_id", "invalid "+name)
	}
	return id, nil
}

// QueryInt parses an optional int64 query parameter.
func QueryInt(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, shared.Validation("request.invalid_query", "invalid "+name)
	}
	return &v, nil
}

func headerInt(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, shared.Validation("request.invalid_header", "invalid "+name)
	}
	return v, nil
}
