// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/keeper/internal/license"
)

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{
		"error": message,
	})
}

// StatusForFault maps a workflow fault to an HTTP status code
func StatusForFault(err error) int {
	switch license.KindOf(err) {
	case license.FaultInvalidReceiptCode:
		return http.StatusBadRequest
	case license.FaultFileMissing:
		return http.StatusNotFound
	case license.FaultFileCorrupt:
		return http.StatusUnprocessableEntity
	case license.FaultNetwork:
		return http.StatusBadGateway
	case license.FaultServerRejected:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
