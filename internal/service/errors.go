package service

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in {"error": {"code": ..., "message": ...}} bodies.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeMalformedDate   = "MALFORMED_DATE"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeUnavailable     = "UNAVAILABLE"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func validationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, CodeValidationError, message)
}

func notFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, CodeNotFound, message)
}

func fileTooLarge(w http.ResponseWriter, message string) {
	writeError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

func malformedDate(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnprocessableEntity, CodeMalformedDate, message)
}

func internalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, CodeInternalError, message)
}

func unavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, CodeUnavailable, message)
}
