// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keeper/internal/api/converters"
	"github.com/autobrr/keeper/internal/license"
	"github.com/autobrr/keeper/internal/machine"
)

// LicenseService is the part of services.LicenseService the API exposes
type LicenseService interface {
	GetCachedContext(ctx context.Context) (license.Context, error)
	ValidateLicense(ctx context.Context) (license.Context, error)
	DownloadLicense(ctx context.Context) (license.Context, error)
	ActivateLicense(ctx context.Context, code string) (license.Context, error)
	UnregisterLicense(ctx context.Context) (license.Context, error)
}

// LicenseHandler serves the license lifecycle endpoints
type LicenseHandler struct {
	service LicenseService
	clock   machine.Clock
}

func NewLicenseHandler(service LicenseService, clock machine.Clock) *LicenseHandler {
	if clock == nil {
		clock = machine.SystemClock{}
	}
	return &LicenseHandler{
		service: service,
		clock:   clock,
	}
}

// ActivateRequest carries the product key to redeem
type ActivateRequest struct {
	Code string `json:"code"`
}

// RegisterRoutes registers license routes on a router mounted at /license
func (h *LicenseHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.GetLicense)
	r.Delete("/", h.Unregister)
	r.Post("/check", h.Check)
	r.Post("/install", h.Install)
	r.Post("/activate", h.Activate)
}

// GetLicense returns the cached license state. Faults are rendered with the
// last verified record rather than as an error response.
func (h *LicenseHandler) GetLicense(w http.ResponseWriter, r *http.Request) {
	hc, _ := h.service.GetCachedContext(r.Context())
	RespondJSON(w, http.StatusOK, converters.ConvertContext(hc, h.clock.Now()))
}

// Check forces a Launch run
func (h *LicenseHandler) Check(w http.ResponseWriter, r *http.Request) {
	hc, err := h.service.ValidateLicense(r.Context())
	h.respond(w, hc, err)
}

// Install downloads a fresh license file
func (h *LicenseHandler) Install(w http.ResponseWriter, r *http.Request) {
	hc, err := h.service.DownloadLicense(r.Context())
	h.respond(w, hc, err)
}

// Activate redeems a product key
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Debug().Err(err).Msg("Failed to decode activate request")
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	hc, err := h.service.ActivateLicense(r.Context(), req.Code)
	if err != nil {
		log.Warn().Err(err).Str("code", converters.MaskCode(req.Code)).Msg("Product key activation failed")
	}
	h.respond(w, hc, err)
}

// Unregister releases this computer's seat and removes the license file
func (h *LicenseHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	hc, err := h.service.UnregisterLicense(r.Context())
	h.respond(w, hc, err)
}

func (h *LicenseHandler) respond(w http.ResponseWriter, hc license.Context, err error) {
	status := http.StatusOK
	if err != nil {
		status = StatusForFault(err)
	}
	RespondJSON(w, status, converters.ConvertContext(hc, h.clock.Now()))
}
