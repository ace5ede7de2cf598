// Package e2e drives black-box scenarios against a running ralphbot
// server. Point RALPH_E2E_BASE_URL at the server and provide the
// operator bootstrap secret; everything goes through the public HTTP
// surface, nothing reaches into the process.
package e2e

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TestContext carries shared state across the steps of one scenario:
// the HTTP client, the operator token, and the last response.
type TestContext struct {
	baseURL  string
	operator string
	secret   string

	client *http.Client
	token  string

	lastStatus int
	lastBody   []byte

	vars map[string]string
}

func NewTestContext(baseURL, operator, secret string) *TestContext {
	return &TestContext{
		baseURL:  strings.TrimRight(baseURL, "/"),
		operator: operator,
		secret:   secret,
		client:   &http.Client{Timeout: 15 * time.Second},
		vars:     map[string]string{},
	}
}

// Reset clears per-scenario state. Called from the scenario hook so
// one scenario's token or response never leaks into the next.
func (tc *TestContext) Reset() {
	tc.token = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.vars = map[string]string{}
}

// Credentials returns the operator name and bootstrap secret.
func (tc *TestContext) Credentials() (string, string) {
	return tc.operator, tc.secret
}

func (tc *TestContext) SetToken(token string) { tc.token = token }
func (tc *TestContext) Token() string        { return tc.token }

func (tc *TestContext) SaveVar(key, value string) { tc.vars[key] = value }
func (tc *TestContext) Var(key string) string     { return tc.vars[key] }

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body)
}

func (tc *TestContext) do(method, path string, body any) error {
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, tc.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tc.token != "" {
		req.Header.Set("Authorization", "Bearer "+tc.token)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody = nil
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	tc.lastBody = buf.Bytes()
	return nil
}

// Status returns the status code of the last response.
func (tc *TestContext) Status() int { return tc.lastStatus }

// Field resolves a dot path like "counts.pending" in the last JSON
// response.
func (tc *TestContext) Field(path string) (any, error) {
	if len(tc.lastBody) == 0 {
		return nil, fmt.Errorf("no response body to look up %q in", path)
	}
	var doc any
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("last response is not JSON: %w", err)
	}
	current := doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", path, part)
		}
		current, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("field %q not present in response", path)
		}
	}
	return current, nil
}

// NewUUID returns a random v4 UUID string for synthetic author IDs.
func (tc *TestContext) NewUUID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
