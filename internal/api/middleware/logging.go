// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"bufio"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

// slowRequest is the duration past which polling requests are logged.
const slowRequest = time.Second

// logf is replaced in tests.
var logf = log.Printf

// recorder remembers the status and body size of a reply.
type recorder struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func (rec *recorder) WriteHeader(status int) {
	if rec.wroteHeader {
		return
	}
	rec.status, rec.wroteHeader = status, true
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *recorder) Write(b []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.size += n
	return n, err
}

// Hijack hands the connection to the websocket upgrader.
func (rec *recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	rec.wroteHeader = true
	rec.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (rec *recorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// headerSent reports whether the reply on w has already started.
func headerSent(w http.ResponseWriter) bool {
	rec, ok := w.(*recorder)
	return ok && rec.wroteHeader
}

// isPolling reports whether r is one of the reads the viewer repeats every
// frame or every few hundred milliseconds.
func isPolling(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	switch p := r.URL.Path; {
	case strings.HasSuffix(p, "/needs-data"), strings.HasSuffix(p, "/data"):
		return strings.HasPrefix(p, "/api/v1/tracks/")
	case p == "/api/v1/engine", p == "/api/v1/state":
		return true
	}
	return false
}

// Logging logs one line per request. Polls are only logged when they fail
// or are slow.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		took := time.Since(start)
		if isPolling(r) && rec.status < http.StatusBadRequest && took < slowRequest {
			return
		}
		logf("API: %s %s %d %dB %s", r.Method, r.URL.Path, rec.status, rec.size, took)
	})
}
