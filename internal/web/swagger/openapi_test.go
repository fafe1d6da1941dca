// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package swagger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestLoadDocument(t *testing.T) {
	doc, err := Load()
	if err != nil {
		t.Fatalf("Failed to load OpenAPI document: %v", err)
	}

	for _, field := range []string{"openapi", "info", "paths"} {
		if doc.Raw[field] == nil {
			t.Errorf("Missing '%s' field", field)
		}
	}

	expected := []string{
		"GET /api/license",
		"DELETE /api/license",
		"POST /api/license/check",
		"POST /api/license/install",
		"POST /api/license/activate",
		"GET /api/license/history",
		"GET /health",
		"GET /metrics",
	}
	ops := doc.Operations()
	for _, op := range expected {
		found := false
		for _, got := range ops {
			if got == op {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Missing operation: %s", op)
		}
	}

	if !doc.Documents("post", "/api/license/check") {
		t.Error("Documents should accept lower case methods")
	}
	if doc.Documents(http.MethodPut, "/api/license") {
		t.Error("PUT /api/license is not documented")
	}

	components, ok := doc.Raw["components"].(map[string]interface{})
	if !ok {
		t.Fatal("Missing or invalid 'components' section")
	}

	schemas, ok := components["schemas"].(map[string]interface{})
	if !ok {
		t.Fatal("Missing or invalid 'schemas' section")
	}

	requiredSchemas := []string{
		"Status",
		"License",
		"Receipt",
		"Fault",
		"ActivateRequest",
		"HistoryEntry",
		"Error",
	}

	for _, schema := range requiredSchemas {
		if schemas[schema] == nil {
			t.Errorf("Missing schema: %s", schema)
		}
	}
}

// TestOpenAPISecuritySchemes validates that security schemes are properly defined
func TestOpenAPISecuritySchemes(t *testing.T) {
	var spec map[string]interface{}
	if err := yaml.Unmarshal(openapiYAML, &spec); err != nil {
		t.Fatalf("Failed to parse OpenAPI spec: %v", err)
	}

	components, ok := spec["components"].(map[string]interface{})
	if !ok {
		t.Fatal("Missing or invalid 'components' section")
	}

	securitySchemes, ok := components["securitySchemes"].(map[string]interface{})
	if !ok {
		t.Fatal("Missing or invalid 'securitySchemes' section")
	}

	requiredSchemes := []string{"ApiKeyAuth"}
	for _, scheme := range requiredSchemes {
		if securitySchemes[scheme] == nil {
			t.Errorf("Missing security scheme: %s", scheme)
		}
	}
}

func TestServeOpenAPISpecWithBaseURL(t *testing.T) {
	h, err := NewHandler("/keeper/")
	if err != nil {
		t.Fatalf("Failed to create handler: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/keeper/api/openapi.json", nil)
	req.Host = "example.com:7477"
	rec := httptest.NewRecorder()
	h.ServeOpenAPISpec(rec, req)

	var spec struct {
		Servers []struct {
			URL string `json:"url"`
		} `json:"servers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &spec); err != nil {
		t.Fatalf("Failed to decode spec: %v", err)
	}

	if len(spec.Servers) == 0 || spec.Servers[0].URL != "http://example.com:7477/keeper" {
		t.Errorf("Expected base URL server first, got %+v", spec.Servers)
	}

	rec = httptest.NewRecorder()
	h.ServeSwaggerUI(rec, httptest.NewRequest(http.MethodGet, "/keeper/api/docs", nil))
	if !strings.Contains(rec.Body.String(), "/keeper/api/openapi.json") {
		t.Error("Swagger UI does not point at the base URL aware spec")
	}
}
