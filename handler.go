package routetree

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"runtime/debug"
)

// Endpoint is the typed surface of one controller method, produced by the
// relay's ControllerMethods.Endpoint. Query, Body and Headers allocate decode
// targets and are nil when the method declares no such part.
type Endpoint struct {
	Query   func() any
	Body    func() any
	Headers func() any
	Handle  func(r *http.Request) (*Result, error)
}

// MethodToHandler adapts one controller method to an http.Handler.
//
// hooks is the cascading chain ordered root to leaf with controller hooks
// last. intRouteParams lists the integer route parameters visible at the
// route; queryParamTypes describes the query contract.
func (c *Config) MethodToHandler(ep Endpoint, hooks []Hooks, schemas Schemas, intRouteParams []string, queryParamTypes []QueryParam, isQueryOptional bool) http.Handler {
	return &methodHandler{
		cfg:             c,
		ep:              ep,
		hooks:           MergeHooks(hooks...),
		schemas:         schemas,
		intRouteParams:  intRouteParams,
		queryParamTypes: queryParamTypes,
		isQueryOptional: isQueryOptional,
	}
}

type methodHandler struct {
	cfg             *Config
	ep              Endpoint
	hooks           Hooks
	schemas         Schemas
	intRouteParams  []string
	queryParamTypes []QueryParam
	isQueryOptional bool
}

func (h *methodHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rw := &responseWriter{ResponseWriter: w}
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.cfg.logger().Error("PANIC recovered",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			h.cfg.handleError(rw, r, fmt.Errorf("internal server error (panic): %v", rec))
		}
	}()

	res, err := h.serve(rw, r)
	if err != nil {
		h.cfg.handleError(rw, r, err)
		return
	}
	if rw.written {
		return
	}
	if err := writeResult(rw, res); err != nil {
		h.cfg.logger().Error("failed to encode response",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
}

func (h *methodHandler) serve(w *responseWriter, r *http.Request) (*Result, error) {
	c := h.cfg

	params, err := castRouteParams(r, h.intRouteParams, c.createError)
	if err != nil {
		return nil, err
	}
	st := newState(params)
	r = WithState(r, st)

	if done, err := runHooks(w, r, h.hooks.OnRequest); done || err != nil {
		return nil, err
	}

	if h.ep.Query != nil {
		if st.Query, err = h.decodeQuery(r.URL.Query()); err != nil {
			return nil, err
		}
	}
	if h.ep.Headers != nil {
		if st.Headers, err = h.decodeHeaders(r.Header); err != nil {
			return nil, err
		}
	}
	if h.ep.Body != nil && hasBody(r.Method) {
		if st.Body, err = h.decodeBody(w, r); err != nil {
			return nil, err
		}
	}

	if done, err := runHooks(w, r, h.hooks.PreHandler); done || err != nil {
		return nil, err
	}

	res, err := h.ep.Handle(r)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{Status: http.StatusNoContent}
	}
	return res, nil
}

// decodeQuery casts the raw query, decodes it into the method's query type and
// validates it. An optional query with no values decodes to nil.
func (h *methodHandler) decodeQuery(values url.Values) (any, error) {
	c := h.cfg
	casted, err := CastQueryParams(values, h.queryParamTypes, h.isQueryOptional, c.createError)
	if err != nil {
		return nil, err
	}
	if h.isQueryOptional && len(casted) == 0 {
		return nil, nil
	}
	target := h.ep.Query()
	if err := c.queryDecoder.Decode(target, encodeCasted(casted)); err != nil {
		return nil, c.createError(http.StatusBadRequest, fmt.Sprintf("Invalid query: %v", err))
	}
	if err := c.validatePart(h.schemas.Query, target, "invalid_request_query"); err != nil {
		return nil, err
	}
	return target, nil
}

func (h *methodHandler) decodeHeaders(header http.Header) (any, error) {
	c := h.cfg
	target := h.ep.Headers()
	if err := c.headerDecoder.Decode(target, url.Values(header)); err != nil {
		return nil, c.createError(http.StatusBadRequest, fmt.Sprintf("Invalid request headers: %v", err))
	}
	if err := c.validatePart(h.schemas.Headers, target, "invalid_request_headers"); err != nil {
		return nil, err
	}
	return target, nil
}

// decodeBody reads a form body for urlencoded and multipart requests and JSON
// otherwise. An empty JSON body leaves the target at its zero value.
func (h *methodHandler) decodeBody(w http.ResponseWriter, r *http.Request) (any, error) {
	c := h.cfg
	if c.maxRequestBodySize > 0 && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, c.maxRequestBodySize)
	}
	target := h.ep.Body()

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(32 << 20)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return nil, bodyError(c, err)
		}
		if err := c.formDecoder.Decode(target, r.PostForm); err != nil {
			return nil, c.createError(http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		}
	default:
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(target); err != nil && !errors.Is(err, io.EOF) {
				return nil, bodyError(c, err)
			}
		}
	}

	if err := c.validatePart(h.schemas.Body, target, "invalid_request_body"); err != nil {
		return nil, err
	}
	return target, nil
}

func bodyError(c *Config, err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return c.createError(http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", maxErr.Limit))
	}
	return c.createError(http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
}

// validatePart runs s over value and converts validator failures into a
// ValidationPayload of the given type. A nil schema always passes.
func (c *Config) validatePart(s Schema, value any, typ string) error {
	if s == nil {
		return nil
	}
	err := s.Parse(c.validate, value)
	if err == nil {
		return nil
	}
	issues, ok := validationIssues(err)
	if !ok {
		return err
	}
	return c.createError(http.StatusBadRequest, &ValidationPayload{
		Type:   typ,
		Issues: issues,
	})
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// responseWriter records whether a hook or handler has started the response.
type responseWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *responseWriter) WriteHeader(status int) {
	if w.written {
		return
	}
	w.status = status
	w.written = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
