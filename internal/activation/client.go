// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package activation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/autobrr/keeper/internal/license"
)

const (
	PathIssue   = "/v1/licenses/issue"
	PathRedeem  = "/v1/licenses/redeem"
	PathRelease = "/v1/licenses/release"

	HeaderAPIKey    = "X-Api-Key"
	HeaderRequestID = "X-Request-ID"

	// CodeInvalidReceipt is the error code the service returns for an unknown or
	// unusable product key.
	CodeInvalidReceipt = "invalid_receipt_code"
	CodeRateLimited    = "rate_limited"

	maxResponseBytes = 1 << 20
)

// IssueRequest asks for a fresh (trial) license bound to a machine
type IssueRequest struct {
	APIKey       string `json:"-"`
	VendorID     string `json:"vendorId"`
	ProductID    string `json:"productId"`
	MachineID    string `json:"machineId"`
	ComputerName string `json:"computerName,omitempty"`
	ValidDays    int    `json:"validDays"`
	TrialDays    int    `json:"trialDays"`
}

// RedeemRequest exchanges a product key for a paid license
type RedeemRequest struct {
	APIKey       string `json:"-"`
	VendorID     string `json:"vendorId"`
	ProductID    string `json:"productId"`
	MachineID    string `json:"machineId"`
	ComputerName string `json:"computerName,omitempty"`
	Code         string `json:"code"`
}

// ReleaseRequest frees the seat held by a machine
type ReleaseRequest struct {
	APIKey    string `json:"-"`
	VendorID  string `json:"vendorId"`
	ProductID string `json:"productId"`
	MachineID string `json:"machineId"`
}

// ErrorResponse is the body the service sends with a non-2xx status
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Config configures a Client
type Config struct {
	ServerURL string
	UserAgent string
	// Timeout bounds each request. Zero leaves it to the caller context.
	Timeout time.Duration
	// RedeemPerMinute throttles product key redemption on the client side. Zero
	// disables throttling.
	RedeemPerMinute int
	HTTPClient      *http.Client
}

// Client talks to the activation service. It never retries on its own; retry
// policy belongs to the caller.
type Client struct {
	baseURL       *url.URL
	userAgent     string
	httpClient    *http.Client
	redeemLimiter *rate.Limiter
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return nil, errors.New("activation server url is empty")
	}

	u, err := url.Parse(strings.TrimRight(cfg.ServerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse activation server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("activation server url must be http or https, got %q", cfg.ServerURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "keeper"
	}

	c := &Client{
		baseURL:    u,
		userAgent:  userAgent,
		httpClient: httpClient,
	}
	if cfg.RedeemPerMinute > 0 {
		c.redeemLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RedeemPerMinute)), cfg.RedeemPerMinute)
	}
	return c, nil
}

// Issue requests a new license file. The returned bytes are the signed envelope.
func (c *Client) Issue(ctx context.Context, req IssueRequest) ([]byte, error) {
	return c.post(ctx, "issue", PathIssue, req.APIKey, req)
}

// Redeem exchanges a product key for a paid license file
func (c *Client) Redeem(ctx context.Context, req RedeemRequest) ([]byte, error) {
	if c.redeemLimiter != nil && !c.redeemLimiter.Allow() {
		log.Warn().Str("code", maskCode(req.Code)).Msg("Redeem throttled locally")
		return nil, &license.Fault{
			Kind:    license.FaultServerRejected,
			Op:      "redeem",
			Code:    CodeRateLimited,
			Message: "too many activation attempts, try again later",
		}
	}
	return c.post(ctx, "redeem", PathRedeem, req.APIKey, req)
}

// Release frees the seat of a machine
func (c *Client) Release(ctx context.Context, req ReleaseRequest) error {
	_, err := c.post(ctx, "release", PathRelease, req.APIKey, req)
	return err
}

func (c *Client) post(ctx context.Context, op, path, apiKey string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, license.NewFault(license.FaultInternal, op, fmt.Errorf("marshal request: %w", err))
	}

	endpoint := c.baseURL.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, license.NewFault(license.FaultInternal, op, fmt.Errorf("build request: %w", err))
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(HeaderAPIKey, apiKey)
	req.Header.Set(HeaderRequestID, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("op", op).Str("requestId", requestID).Msg("Activation request failed")
		return nil, license.NewFault(license.FaultNetwork, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, license.NewFault(license.FaultNetwork, op, fmt.Errorf("read response: %w", err))
	}

	log.Debug().
		Str("op", op).
		Str("requestId", requestID).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Activation request completed")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, responseFault(op, resp.StatusCode, data)
}

func responseFault(op string, status int, body []byte) error {
	var er ErrorResponse
	if len(body) > 0 {
		// a non-JSON body still maps by status
		_ = json.Unmarshal(body, &er)
	}
	if er.Message == "" {
		er.Message = strings.TrimSpace(http.StatusText(status))
	}

	kind := license.FaultServerRejected
	switch {
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		kind = license.FaultNetwork
	case er.Code == CodeInvalidReceipt:
		kind = license.FaultInvalidReceiptCode
	}

	return &license.Fault{
		Kind:    kind,
		Op:      op,
		Status:  status,
		Code:    er.Code,
		Message: er.Message,
	}
}

// maskCode masks a product key for logging (shows first 4 chars + ***)
func maskCode(code string) string {
	if len(code) <= 4 {
		return "***"
	}
	return code[:4] + "***"
}
