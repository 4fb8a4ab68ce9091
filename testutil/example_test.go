package testutil_test

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/broady/routetree"
	"github.com/broady/routetree/testutil"
)

// Example types for testing
type ExampleRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type ExampleResponse struct {
	Message string `json:"message"`
	ID      int    `json:"id"`
}

type SearchQuery struct {
	Query string `query:"query"`
	Limit int    `query:"limit"`
}

func quietConfig() *routetree.Config {
	return routetree.NewConfig().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// exampleEndpoint is what a relay file produces for a Post method with a
// validated ReqBody.
func exampleEndpoint() (routetree.Endpoint, routetree.Schemas) {
	ep := routetree.Endpoint{
		Body: routetree.Target[ExampleRequest],
		Handle: func(r *http.Request) (*routetree.Result, error) {
			req := routetree.Value[ExampleRequest](routetree.StateOf(r).Body)
			return routetree.Invoke(&routetree.Response[ExampleResponse]{
				Body: ExampleResponse{Message: "Hello, " + req.Name, ID: 123},
			}, nil)
		},
	}
	return ep, routetree.Schemas{Body: routetree.SchemaOf[ExampleRequest]()}
}

// TestRequestBuilder demonstrates the fluent API for building requests
func TestRequestBuilder(t *testing.T) {
	ep, schemas := exampleEndpoint()
	handler := quietConfig().MethodToHandler(ep, nil, schemas, nil, nil, false)

	w := testutil.NewRequest().
		POST("/test").
		WithJSON(&ExampleRequest{Name: "Alice", Email: "alice@example.com"}).
		Serve("POST /test", handler)

	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSONResponse(t, w, &ExampleResponse{
		Message: "Hello, Alice",
		ID:      123,
	})
}

// TestRequestBuilder_Validation demonstrates validation error handling
func TestRequestBuilder_Validation(t *testing.T) {
	ep, schemas := exampleEndpoint()
	handler := quietConfig().MethodToHandler(ep, nil, schemas, nil, nil, false)

	w := testutil.NewRequest().
		POST("/test").
		WithJSON(&ExampleRequest{Name: "Alice", Email: "invalid-email"}).
		Serve("POST /test", handler)

	payload := testutil.AssertValidationError(t, w, "invalid_request_body")
	if len(payload.Issues) != 1 || payload.Issues[0].Code != "email" {
		t.Errorf("expected one email issue, got %+v", payload.Issues)
	}
}

// TestRequestBuilder_GET demonstrates GET request with query parameters and
// an integer route parameter.
func TestRequestBuilder_GET(t *testing.T) {
	ep := routetree.Endpoint{
		Query: routetree.Target[SearchQuery],
		Handle: func(r *http.Request) (*routetree.Result, error) {
			q := routetree.Value[SearchQuery](routetree.StateOf(r).Query)
			return routetree.Invoke(&routetree.Response[ExampleResponse]{
				Body: ExampleResponse{
					Message: "Search: " + q.Query,
					ID:      q.Limit + routetree.Param[int](r, "userId"),
				},
			}, nil)
		},
	}
	queryTypes := []routetree.QueryParam{
		{Name: "query", Kind: routetree.KindString},
		{Name: "limit", Kind: routetree.KindInt},
	}
	handler := quietConfig().MethodToHandler(ep, nil, routetree.Schemas{}, []string{"userId"}, queryTypes, false)

	w := testutil.NewRequest().
		GET("/users/5/search").
		WithQuery("query", "golang").
		WithQuery("limit", "10").
		Serve("GET /users/{userId}/search", handler)

	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSONResponse(t, w, &ExampleResponse{
		Message: "Search: golang",
		ID:      15,
	})
}

// TestRequestBuilder_CustomHeader demonstrates custom headers and hooks
func TestRequestBuilder_CustomHeader(t *testing.T) {
	ep, schemas := exampleEndpoint()
	auth := routetree.Hooks{
		OnRequest: []routetree.HookFunc{
			func(w http.ResponseWriter, r *http.Request) error {
				if r.Header.Get("X-API-Key") != "secret" {
					return routetree.Errorf(http.StatusUnauthorized, "invalid api key")
				}
				return nil
			},
		},
	}
	handler := quietConfig().MethodToHandler(ep, []routetree.Hooks{auth}, schemas, nil, nil, false)

	body := &ExampleRequest{Name: "Alice", Email: "alice@example.com"}
	w := testutil.NewRequest().
		POST("/test").
		WithJSON(body).
		WithHeader("X-API-Key", "secret").
		Serve("POST /test", handler)
	testutil.AssertStatus(t, w, http.StatusOK)

	w = testutil.NewRequest().
		POST("/test").
		WithJSON(body).
		Serve("POST /test", handler)
	errResp := testutil.AssertJSONError(t, w, http.StatusUnauthorized)
	if errResp.Message != "invalid api key" {
		t.Errorf("expected invalid api key, got %s", errResp.Message)
	}
}

// TestAssertHeader demonstrates header assertions
func TestAssertHeader(t *testing.T) {
	ep := routetree.Endpoint{
		Handle: func(r *http.Request) (*routetree.Result, error) {
			return routetree.Invoke(&routetree.Response[string]{
				Headers: map[string]string{"Cache-Control": "private, max-age=60"},
				Body:    "cached response",
			}, nil)
		},
	}
	handler := quietConfig().MethodToHandler(ep, nil, routetree.Schemas{}, nil, nil, false)

	w := testutil.NewRequest().GET("/test").Serve("GET /test", handler)

	testutil.AssertHeader(t, w, "Cache-Control", "private, max-age=60")
	testutil.AssertHeader(t, w, "Content-Type", "text/plain; charset=utf-8")
}

// TestWithState calls a hook directly, without a generated handler.
func TestWithState(t *testing.T) {
	type session struct{ User string }
	hook := func(w http.ResponseWriter, r *http.Request) error {
		s := routetree.Contribution[session](routetree.StateOf(r))
		if s.User == "" {
			return errors.New("no user")
		}
		return nil
	}

	req, w := testutil.NewRequest().WithState(&routetree.State{}).Build()
	routetree.Contribution[session](routetree.StateOf(req)).User = "alice"
	if err := hook(w, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Example showing the before/after comparison
func ExampleRequestBuilder_comparison() {
	// BEFORE (manual setup - verbose):
	// reqBody := `{"name":"Alice","email":"alice@example.com"}`
	// req := httptest.NewRequest("POST", "/test", strings.NewReader(reqBody))
	// req.Header.Set("Content-Type", "application/json")
	// w := httptest.NewRecorder()
	// mux := http.NewServeMux()
	// mux.Handle("POST /test", handler)
	// mux.ServeHTTP(w, req)

	// AFTER (using testutil - more concise):
	ep, schemas := exampleEndpoint()
	handler := quietConfig().MethodToHandler(ep, nil, schemas, nil, nil, false)
	w := testutil.NewRequest().
		POST("/test").
		WithJSON(&ExampleRequest{Name: "Alice", Email: "alice@example.com"}).
		Serve("POST /test", handler)
	testutil.AssertStatus(nil, w, http.StatusOK)
}
