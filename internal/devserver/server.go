// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package devserver is an in-memory activation service. It issues trial
// licenses, redeems product keys against a seat limit and releases seats, and
// signs every license it hands out. It backs local development and the
// integration tests of the workflow engine.
package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keeper/internal/activation"
	"github.com/autobrr/keeper/internal/license"
	"github.com/autobrr/keeper/internal/machine"
	"github.com/autobrr/keeper/internal/signature"
)

// Code is a product key the service accepts
type Code struct {
	Code       string
	Seats      int
	Expires    *time.Time
	BuyerEmail string
}

// Config describes the single product the service sells
type Config struct {
	VendorID    string
	VendorName  string
	ProductID   string
	ProductName string
	APIKey      string
	// TrialEnabled adds a trial end date to issued licenses that have no receipt
	TrialEnabled bool
	Codes        []Code
}

type issueRequest struct {
	VendorID     string `json:"vendorId" validate:"required"`
	ProductID    string `json:"productId" validate:"required"`
	MachineID    string `json:"machineId" validate:"required"`
	ComputerName string `json:"computerName"`
	ValidDays    int    `json:"validDays" validate:"gte=0"`
	TrialDays    int    `json:"trialDays" validate:"gte=0"`
}

type redeemRequest struct {
	VendorID     string `json:"vendorId" validate:"required"`
	ProductID    string `json:"productId" validate:"required"`
	MachineID    string `json:"machineId" validate:"required"`
	ComputerName string `json:"computerName"`
	Code         string `json:"code" validate:"required,max=100"`
}

type releaseRequest struct {
	VendorID  string `json:"vendorId" validate:"required"`
	ProductID string `json:"productId" validate:"required"`
	MachineID string `json:"machineId" validate:"required"`
}

type seat struct {
	code     string
	computer license.Computer
}

// Server is the activation service
type Server struct {
	cfg      Config
	signer   *signature.Signer
	clock    machine.Clock
	validate *validator.Validate

	mu        sync.Mutex
	codes     map[string]Code
	seats     map[string]seat      // machine id -> redeemed code
	firstSeen map[string]time.Time // machine id -> first issue
	requests  map[string]int
}

func New(cfg Config, signer *signature.Signer, clock machine.Clock) *Server {
	if clock == nil {
		clock = machine.SystemClock{}
	}

	s := &Server{
		cfg:       cfg,
		signer:    signer,
		clock:     clock,
		validate:  validator.New(),
		codes:     make(map[string]Code),
		seats:     make(map[string]seat),
		firstSeen: make(map[string]time.Time),
		requests:  make(map[string]int),
	}
	for _, c := range cfg.Codes {
		s.codes[c.Code] = c
	}
	return s
}

// AddCode registers a product key
func (s *Server) AddCode(c Code) {
	s.mu.Lock()
	s.codes[c.Code] = c
	s.mu.Unlock()
}

// SeatsUsed returns the number of machines holding a seat for code
func (s *Server) SeatsUsed(code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seatsUsedLocked(code)
}

// Requests returns how many calls an endpoint (issue, redeem, release) received
func (s *Server) Requests(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[op]
}

func (s *Server) seatsUsedLocked(code string) int {
	n := 0
	for _, st := range s.seats {
		if st.code == code {
			n++
		}
	}
	return n
}

// Routes returns the HTTP handler of the service
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requireAPIKey)

	r.Post(activation.PathIssue, s.handleIssue)
	r.Post(activation.PathRedeem, s.handleRedeem)
	r.Post(activation.PathRelease, s.handleRelease)
	return r
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get(activation.HeaderAPIKey) != s.cfg.APIKey {
			respondError(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if !s.decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests["issue"]++

	now := s.clock.Now()
	first, ok := s.firstSeen[machineKey(req.MachineID)]
	if !ok {
		first = now
		s.firstSeen[machineKey(req.MachineID)] = now
	}

	rec := s.baseRecord(now, req.MachineID, req.ComputerName, req.ValidDays)
	if st, ok := s.seats[machineKey(req.MachineID)]; ok {
		// the machine already holds a paid seat, hand the paid license out again
		if code, ok := s.codes[st.code]; ok {
			rec.Receipt = receiptFor(code)
		}
	} else if s.cfg.TrialEnabled && req.TrialDays > 0 {
		end := first.Add(time.Duration(req.TrialDays) * 24 * time.Hour)
		rec.TrialEndDate = &end
	}

	log.Debug().Str("machine", machine.Digest(req.MachineID)).Bool("paid", rec.Receipt != nil).Msg("Issuing license")
	s.respondLicense(w, rec)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !s.decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests["redeem"]++

	code, ok := s.codes[strings.TrimSpace(req.Code)]
	if !ok {
		respondError(w, http.StatusUnprocessableEntity, activation.CodeInvalidReceipt, "product key is not valid")
		return
	}

	key := machineKey(req.MachineID)
	if st, held := s.seats[key]; !held || st.code != code.Code {
		if code.Seats > 0 && s.seatsUsedLocked(code.Code) >= code.Seats {
			respondError(w, http.StatusConflict, "seat_limit", "all seats for this product key are in use")
			return
		}
	}
	s.seats[key] = seat{code: code.Code, computer: license.Computer{Name: req.ComputerName, MacAddress: req.MachineID}}

	now := s.clock.Now()
	rec := s.baseRecord(now, req.MachineID, req.ComputerName, 0)
	rec.Receipt = receiptFor(code)

	log.Info().Str("machine", machine.Digest(req.MachineID)).Int("seats", s.seatsUsedLocked(code.Code)).Msg("Product key redeemed")
	s.respondLicense(w, rec)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if !s.decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests["release"]++

	delete(s.seats, machineKey(req.MachineID))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) baseRecord(now time.Time, machineID, computerName string, validDays int) *license.Record {
	if validDays <= 0 {
		validDays = license.DefaultValidDays
	}
	expires := now.Add(time.Duration(validDays) * 24 * time.Hour)
	created := now
	return &license.Record{
		Created:  &created,
		Updated:  &created,
		Expires:  &expires,
		Computer: &license.Computer{Name: computerName, MacAddress: machineID},
		Product: license.Product{
			ID:     s.cfg.ProductID,
			Name:   s.cfg.ProductName,
			Vendor: license.Vendor{ID: s.cfg.VendorID, Name: s.cfg.VendorName},
		},
	}
}

func receiptFor(c Code) *license.Receipt {
	r := &license.Receipt{Code: c.Code, BuyerEmail: c.BuyerEmail}
	if c.Expires != nil {
		exp := *c.Expires
		r.Expires = &exp
	}
	return r
}

func (s *Server) respondLicense(w http.ResponseWriter, rec *license.Record) {
	rec.Status = license.Evaluate(rec, s.clock.Now(), rec.Computer.MacAddress)

	data, err := license.Seal(rec, s.signer.Algorithm(), s.signer.Sign)
	if err != nil {
		log.Error().Err(err).Msg("Failed to sign license")
		respondError(w, http.StatusInternalServerError, "internal", "failed to sign license")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return false
	}

	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "Code" {
			respondError(w, http.StatusUnprocessableEntity, activation.CodeInvalidReceipt, "product key is not valid")
			return false
		}
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return false
	}

	var vendor, product string
	switch req := v.(type) {
	case *issueRequest:
		vendor, product = req.VendorID, req.ProductID
	case *redeemRequest:
		vendor, product = req.VendorID, req.ProductID
	case *releaseRequest:
		vendor, product = req.VendorID, req.ProductID
	}
	if vendor != s.cfg.VendorID || product != s.cfg.ProductID {
		respondError(w, http.StatusNotFound, "unknown_product", "product is not sold by this service")
		return false
	}
	return true
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(activation.ErrorResponse{Code: code, Message: message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

func machineKey(id string) string {
	return license.NormalizeMachineID(id)
}
