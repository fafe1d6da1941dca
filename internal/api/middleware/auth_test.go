// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireAPIKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		configured string
		sent       string
		want       int
	}{
		{name: "disabled", configured: "", sent: "", want: http.StatusNoContent},
		{name: "missing", configured: "secret", sent: "", want: http.StatusUnauthorized},
		{name: "wrong", configured: "secret", sent: "guess", want: http.StatusUnauthorized},
		{name: "correct", configured: "secret", sent: "secret", want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/license", nil)
			if tt.sent != "" {
				req.Header.Set(HeaderAPIKey, tt.sent)
			}
			rec := httptest.NewRecorder()
			RequireAPIKey(tt.configured)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
