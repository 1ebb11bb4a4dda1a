// Package transport exposes the admin stores over a local JSON API: a chi
// router, its middleware chain and the request handlers.
package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/pitabwire/shopdesk/model"
)

const maxBodySize = 1 << 20

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrNotAuthenticated:   http.StatusUnauthorized,
	model.ErrNotFound:           http.StatusNotFound,
	model.ErrValidationRejected: http.StatusUnprocessableEntity,
	model.ErrNetworkUnavailable: http.StatusBadGateway,
	model.ErrUnknown:            http.StatusInternalServerError,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

type errorResponse struct {
	Error *model.ErrorEnvelope `json:"error"`
}

// WriteError classifies err and writes it as {"error": envelope}.
func WriteError(w http.ResponseWriter, err error) {
	ee := model.AsEnvelope(err)
	if ee == nil {
		ee = model.NewUnknownError("")
	}
	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, errorResponse{Error: ee})
}

// decodeBody reads a JSON request body into out. An empty body leaves out
// untouched.
func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return model.NewValidationRejectedError("Invalid request body", nil)
	}
	return nil
}

// pageParam reads ?page=N. Absent means 0, which keeps the current page.
func pageParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, model.NewValidationRejectedError("page must be a positive integer", []model.FieldError{
			{Field: "page", Message: "must be a positive integer"},
		})
	}
	return n, nil
}
