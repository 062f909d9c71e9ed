package httpapi

import (
	"encoding/json"
	"net/http"

	appErrors "coursehub-backend/pkg/errors"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := appErrors.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case appErrors.KindNotFound:
		status = http.StatusNotFound
	case appErrors.KindAlreadyExists, appErrors.KindConflict:
		status = http.StatusConflict
	case appErrors.KindInvalidTransition:
		status = http.StatusForbidden
	case appErrors.KindValidation:
		status = http.StatusBadRequest
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, errorBody{Error: message, Kind: string(kind)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, appErrors.NewValidation("invalid request body"))
		return false
	}
	return true
}
