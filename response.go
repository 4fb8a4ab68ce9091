package routetree

import (
	"encoding/json"
	"io"
	"net/http"
	"reflect"
)

// Response is what a controller method returns.
// A Body of string kind is written as text/plain, anything else as JSON.
// A nil Body writes no content but keeps the JSON content type.
// A zero Status means 200.
type Response[B any] struct {
	Status  int
	Headers map[string]string
	Body    B
}

// Result is a Response with its body type erased.
type Result struct {
	Status  int
	Headers map[string]string
	Body    any
}

// Invoke erases the body type of a controller result.
func Invoke[B any](res *Response[B], err error) (*Result, error) {
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return &Result{
		Status:  res.Status,
		Headers: res.Headers,
		Body:    res.Body,
	}, nil
}

func writeResult(w http.ResponseWriter, res *Result) error {
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	if res.Body == nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		for k, v := range res.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(status)
		return nil
	}
	// Named string types count as strings.
	if v := reflect.ValueOf(res.Body); v.Kind() == reflect.String {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for k, val := range res.Headers {
			w.Header().Set(k, val)
		}
		w.WriteHeader(status)
		_, err := io.WriteString(w, v.String())
		return err
	}
	return writeJSON(w, status, res.Headers, res.Body)
}

// writeJSON writes v as JSON. Declared headers may override the content type.
func writeJSON(w http.ResponseWriter, status int, headers map[string]string, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	for k, val := range headers {
		w.Header().Set(k, val)
	}
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
