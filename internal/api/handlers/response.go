// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Response is the envelope of every API reply. Exactly one of Data and
// Error is set.
type Response struct {
	Data  any        `json:"data,omitempty"`
	Error *ErrorInfo `json:"error,omitempty"`
	Meta  *MetaInfo  `json:"meta,omitempty"`
}

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// MetaInfo carries the time the reply was built.
type MetaInfo struct {
	Timestamp time.Time `json:"timestamp"`
}

// Error codes.
const (
	ErrNotFound      = "NOT_FOUND"
	ErrBadRequest    = "BAD_REQUEST"
	ErrInternalError = "INTERNAL_ERROR"
	ErrUnavailable   = "UNAVAILABLE"
	ErrActionFailed  = "ACTION_FAILED"
)

func write(w http.ResponseWriter, status int, resp Response) {
	resp.Meta = &MetaInfo{Timestamp: time.Now()}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("API: writing %d reply: %v", status, err)
	}
}

// WriteJSON replies with data.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Response{Data: data})
}

// WriteError replies with an error.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorWithDetails(w, status, code, message, nil)
}

// WriteErrorWithDetails replies with an error carrying details, such as the
// index of the failed action in a batch.
func WriteErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	write(w, status, Response{Error: &ErrorInfo{Code: code, Message: message, Details: details}})
}
