package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/tradefabric/gateway/internal/apierr"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		return
	}
}

// errorBody is the canonical error projection of spec.md §6:
// "{error, message, details, correlation_id}".
type errorBody struct {
	Error         string                 `json:"error"`
	Message       string                 `json:"message"`
	Details       map[string]interface{} `json:"details,omitempty"`
	RetryAfter    int                    `json:"retry_after,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apierr.AsError(err)
	writeJSON(w, e.HTTPStatus(), errorBody{
		Error: string(e.Code), Message: e.Message, Details: e.Details,
		RetryAfter: e.RetryAfter, CorrelationID: correlationIDFrom(r.Context()),
	})
}
