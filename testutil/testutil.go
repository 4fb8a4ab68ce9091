// Package testutil provides testing helpers for routetree handlers.
// It only depends on the runtime package, so controllers and hooks in any
// api/ tree can use it from their tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/broady/routetree"
)

// RequestBuilder helps construct test HTTP requests with fluent API.
type RequestBuilder struct {
	method  string
	path    string
	body    []byte
	headers map[string]string
	query   url.Values
	state   *routetree.State
}

// NewRequest creates a new request builder for GET /.
func NewRequest() *RequestBuilder {
	return &RequestBuilder{
		method:  http.MethodGet,
		path:    "/",
		headers: make(map[string]string),
		query:   make(url.Values),
	}
}

// GET sets the HTTP method to GET.
func (b *RequestBuilder) GET(path string) *RequestBuilder {
	return b.Method(http.MethodGet, path)
}

// POST sets the HTTP method to POST.
func (b *RequestBuilder) POST(path string) *RequestBuilder {
	return b.Method(http.MethodPost, path)
}

// Method sets an arbitrary HTTP method and path.
func (b *RequestBuilder) Method(method, path string) *RequestBuilder {
	b.method = method
	b.path = path
	return b
}

// WithJSON sets the request body as JSON.
func (b *RequestBuilder) WithJSON(v any) *RequestBuilder {
	data, _ := json.Marshal(v)
	b.body = data
	b.headers["Content-Type"] = "application/json"
	return b
}

// WithForm sets the request body as an urlencoded form.
func (b *RequestBuilder) WithForm(values url.Values) *RequestBuilder {
	b.body = []byte(values.Encode())
	b.headers["Content-Type"] = "application/x-www-form-urlencoded"
	return b
}

// WithBody sets the raw request body.
func (b *RequestBuilder) WithBody(body string) *RequestBuilder {
	b.body = []byte(body)
	return b
}

// WithHeader adds a header to the request.
func (b *RequestBuilder) WithHeader(key, value string) *RequestBuilder {
	b.headers[key] = value
	return b
}

// WithQuery adds a query parameter. Repeated keys build an array.
func (b *RequestBuilder) WithQuery(key, value string) *RequestBuilder {
	b.query.Add(key, value)
	return b
}

// WithState attaches request state, for calling hooks directly without
// going through a generated handler.
func (b *RequestBuilder) WithState(st *routetree.State) *RequestBuilder {
	b.state = st
	return b
}

// Build creates the HTTP request and ResponseRecorder.
func (b *RequestBuilder) Build() (*http.Request, *httptest.ResponseRecorder) {
	path := b.path
	if len(b.query) > 0 {
		path += "?" + b.query.Encode()
	}

	var req *http.Request
	if len(b.body) > 0 {
		req = httptest.NewRequest(b.method, path, bytes.NewReader(b.body))
	} else {
		req = httptest.NewRequest(b.method, path, nil)
	}
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}
	if b.state != nil {
		req = routetree.WithState(req, b.state)
	}
	return req, httptest.NewRecorder()
}

// Serve registers h under pattern on a fresh ServeMux and performs the
// request, so route parameters resolve like they do in a generated server.
// An empty pattern serves every path.
func (b *RequestBuilder) Serve(pattern string, h http.Handler) *httptest.ResponseRecorder {
	if pattern == "" {
		pattern = "/"
	}
	mux := http.NewServeMux()
	mux.Handle(pattern, h)
	req, w := b.Build()
	mux.ServeHTTP(w, req)
	return w
}

// AssertStatus checks that the response has the expected status code.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()
	if w.Code != expectedStatus {
		t.Errorf("expected status %d, got %d\nBody: %s", expectedStatus, w.Code, w.Body.String())
	}
}

// AssertJSONResponse decodes the response body and compares it with expected value.
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expected any) {
	t.Helper()

	contentType := w.Header().Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		t.Errorf("expected Content-Type to contain application/json, got %s", contentType)
	}

	// Compare as JSON to ignore formatting differences
	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("failed to encode expected value: %v", err)
	}
	var expectedData, actualData any
	if err := json.Unmarshal(expectedJSON, &expectedData); err != nil {
		t.Fatalf("failed to decode expected value: %v", err)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &actualData); err != nil {
		t.Fatalf("failed to decode response: %v\nBody: %s", err, w.Body.String())
	}

	expectedStr, _ := json.MarshalIndent(expectedData, "", "  ")
	actualStr, _ := json.MarshalIndent(actualData, "", "  ")
	if string(expectedStr) != string(actualStr) {
		t.Errorf("response mismatch:\nExpected:\n%s\nActual:\n%s", expectedStr, actualStr)
	}
}

// ErrorResponse is the JSON body written for an error with a message.
type ErrorResponse struct {
	Message string `json:"message"`
}

// AssertJSONError checks that the response is an error with the expected
// status and returns its decoded body.
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) *ErrorResponse {
	t.Helper()
	AssertStatus(t, w, expectedStatus)

	var errResp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v\nBody: %s", err, w.Body.String())
	}
	return &errResp
}

// AssertValidationError checks that the response is a 400 validation
// failure of the given type, such as "invalid_request_body".
func AssertValidationError(t *testing.T, w *httptest.ResponseRecorder, expectedType string) *routetree.ValidationPayload {
	t.Helper()
	AssertStatus(t, w, http.StatusBadRequest)

	var payload routetree.ValidationPayload
	if err := json.NewDecoder(w.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode validation response: %v\nBody: %s", err, w.Body.String())
	}
	if payload.Type != expectedType {
		t.Errorf("expected validation type %s, got %s (issues: %v)", expectedType, payload.Type, payload.Issues)
	}
	return &payload
}

// AssertHeader checks that a response header has the expected value.
func AssertHeader(t *testing.T, w *httptest.ResponseRecorder, key, expectedValue string) {
	t.Helper()
	actual := w.Header().Get(key)
	if actual != expectedValue {
		t.Errorf("expected header %s=%s, got %s", key, expectedValue, actual)
	}
}

// DecodeJSON decodes the response body into the provided value.
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v\nBody: %s", err, w.Body.String())
	}
}
