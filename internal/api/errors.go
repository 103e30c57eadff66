package api

import "net/http"

// BadRequest writes a 400 badRequest fault.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteFault(w, "badRequest", http.StatusBadRequest, msg)
}

// Unauthorized writes a 401 unauthorized fault.
func Unauthorized(w http.ResponseWriter) {
	WriteFault(w, "unauthorized", http.StatusUnauthorized, "Authentication required")
}

// Forbidden writes a 403 forbidden fault.
func Forbidden(w http.ResponseWriter, msg string) {
	WriteFault(w, "forbidden", http.StatusForbidden, msg)
}

// NotFound writes a 404 itemNotFound fault.
func NotFound(w http.ResponseWriter, msg string) {
	WriteFault(w, "itemNotFound", http.StatusNotFound, msg)
}

// Conflict writes a 409 conflictingRequest fault.
func Conflict(w http.ResponseWriter, msg string) {
	WriteFault(w, "conflictingRequest", http.StatusConflict, msg)
}

// UnprocessableEntity writes a 422 unprocessableEntity fault.
func UnprocessableEntity(w http.ResponseWriter, msg string) {
	WriteFault(w, "unprocessableEntity", http.StatusUnprocessableEntity, msg)
}

// InternalError writes a 500 computeFault.
func InternalError(w http.ResponseWriter, msg string) {
	WriteFault(w, "computeFault", http.StatusInternalServerError, msg)
}
