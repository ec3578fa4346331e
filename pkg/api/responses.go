package api

import (
	"encoding/json"
	"net/http"

	"github.com/stormstack/control-plane/pkg/apierrors"
)

// errTooManyRequests is a surface-level concern (rate limiting), not a
// domain error from any component, so its RATE_LIMITED code is defined here
// rather than in pkg/apierrors; it is still a *apierrors.ServiceError.
var errTooManyRequests = apierrors.New(apierrors.ErrorCode("RATE_LIMITED"), "too many requests", http.StatusTooManyRequests)

type errorBody struct {
	ErrorCode string                 `json:"errorCode"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError translates any error into its §7 status code and a small JSON
// body. Errors that aren't a *apierrors.ServiceError are invariant
// violations by definition and map to 500.
func writeError(w http.ResponseWriter, err error) {
	se := apierrors.As(err)
	if se == nil {
		se = apierrors.Internal("unexpected error", err)
	}
	writeJSON(w, se.HTTPStatus, errorBody{
		ErrorCode: string(se.Code),
		Message:   se.Message,
		Details:   se.Details,
	})
}

func writeCreated(w http.ResponseWriter, location string, body interface{}) {
	w.Header().Set("Location", location)
	writeJSON(w, http.StatusCreated, body)
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, out interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return apierrors.Validation("body", "malformed JSON: "+err.Error())
	}
	return nil
}
