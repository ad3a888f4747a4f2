package handle

import (
	"encoding/json"
	"net/http"

	"medilink/internal/myerrors"
)

// jsonResponse writes the given data as a JSON-encoded HTTP response.
func jsonResponse(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// jsonError maps the taxonomy error onto an HTTP status and writes it
// as JSON.
func jsonError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(myerrors.HTTPStatus(err))
	if err == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":  myerrors.Code(err),
		"error": err.Error(),
	})
}
