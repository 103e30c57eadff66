package api

import (
	"encoding/json"
	"log"
	"net/http"
)

// Fault is the OpenStack error envelope: a single-key object whose key
// names the fault kind, e.g. {"itemNotFound": {"code": 404, ...}}.
type Fault map[string]FaultBody

// FaultBody carries the HTTP code and a human-readable message.
type FaultBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewFault builds a Fault of the given kind.
func NewFault(kind string, code int, message string) Fault {
	return Fault{kind: {Code: code, Message: message}}
}

// WriteJSON serialises resp as JSON and writes it to w with the given HTTP status code.
func WriteJSON(w http.ResponseWriter, status int, resp interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("WriteJSON: failed to encode response: %v", err)
	}
}

// WriteFault writes an OpenStack fault envelope of the given kind.
func WriteFault(w http.ResponseWriter, kind string, code int, message string) {
	WriteJSON(w, code, NewFault(kind, code, message))
}
