// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/keeper/internal/api/converters"
	"github.com/autobrr/keeper/internal/models"
)

const maxHistoryLimit = 500

type HistoryLister interface {
	List(ctx context.Context, limit int) ([]*models.HistoryEntry, error)
}

type HistoryHandler struct {
	history HistoryLister
}

func NewHistoryHandler(history HistoryLister) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// ListHistory returns the most recent workflow runs, newest first
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := h.history.List(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list workflow history")
		RespondError(w, http.StatusInternalServerError, "Failed to list history")
		return
	}

	RespondJSON(w, http.StatusOK, converters.ConvertHistory(entries))
}
