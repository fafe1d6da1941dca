// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package swagger serves the embedded OpenAPI description of the license API.
package swagger

import (
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openapiYAML []byte

//go:embed index.html
var swaggerHTML string

var ErrNoDocument = errors.New("no OpenAPI document embedded")

var httpMethods = map[string]bool{
	"get": true, "post": true, "put": true, "delete": true, "patch": true,
}

// Document is the parsed OpenAPI file. Raw keeps every field so the JSON
// rendition is lossless; Paths is the typed view used for route checks.
type Document struct {
	Raw   map[string]any
	Paths map[string]map[string]any
}

// Load parses the embedded openapi.yaml.
func Load() (*Document, error) {
	if len(openapiYAML) == 0 {
		return nil, ErrNoDocument
	}

	var doc Document
	if err := yaml.Unmarshal(openapiYAML, &doc.Raw); err != nil {
		return nil, err
	}

	var typed struct {
		Paths map[string]map[string]any `yaml:"paths"`
	}
	if err := yaml.Unmarshal(openapiYAML, &typed); err != nil {
		return nil, err
	}
	doc.Paths = typed.Paths
	return &doc, nil
}

// Operations returns the documented "METHOD /path" pairs, sorted.
func (d *Document) Operations() []string {
	var ops []string
	for path, item := range d.Paths {
		for method := range item {
			if httpMethods[method] {
				ops = append(ops, strings.ToUpper(method)+" "+path)
			}
		}
	}
	sort.Strings(ops)
	return ops
}

// Documents reports whether method and path appear in the document.
func (d *Document) Documents(method, path string) bool {
	item, ok := d.Paths[path]
	if !ok {
		return false
	}
	_, ok = item[strings.ToLower(method)]
	return ok
}

type Handler struct {
	doc     *Document
	baseURL string
}

func NewHandler(baseURL string) (*Handler, error) {
	doc, err := Load()
	if err != nil {
		return nil, err
	}
	return &Handler{doc: doc, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/docs", h.ServeSwaggerUI)
	r.Get("/api/openapi.json", h.ServeOpenAPISpec)
}

func (h *Handler) ServeSwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(strings.ReplaceAll(swaggerHTML, "{{OPENAPI_URL}}", h.baseURL+"/api/openapi.json")))
}

func (h *Handler) ServeOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]any, len(h.doc.Raw))
	for k, v := range h.doc.Raw {
		out[k] = v
	}

	// behind a base URL the request host is the only address that works
	if h.baseURL != "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		servers := []any{map[string]any{
			"url":         scheme + "://" + r.Host + h.baseURL,
			"description": "keeper behind " + h.baseURL,
		}}
		if existing, ok := h.doc.Raw["servers"].([]any); ok {
			servers = append(servers, existing...)
		}
		out["servers"] = servers
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
