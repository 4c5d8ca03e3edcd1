// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Recovery turns a panic in a handler, such as an invariant violation raised
// outside the session, into an INTERNAL_ERROR reply. A reply that already
// started is left as is.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			logf("API: panic serving %s: %v\n%s", r.URL.Path, p, debug.Stack())
			if headerSent(w) {
				return
			}

			// Same envelope as handlers.WriteError.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{
					"code":    "INTERNAL_ERROR",
					"message": "Internal server error",
					"details": map[string]string{"path": r.URL.Path, "panic": fmt.Sprint(p)},
				},
			})
		}()

		next.ServeHTTP(w, r)
	})
}
