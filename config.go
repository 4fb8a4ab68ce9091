package routetree

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

// Router is the registration contract generated servers target.
// *chi.Mux satisfies it. Static path segments take precedence over
// parameters at the same depth, so "/users/me/{x}" and "/users/{id}/posts"
// can be registered side by side.
type Router interface {
	http.Handler
	Method(method, pattern string, handler http.Handler)
}

// NewRouter returns the default Router.
func NewRouter() Router {
	return chi.NewRouter()
}

// Config holds the process-scoped collaborators of a generated server:
// error construction, logging, validation and decoding.
// The zero value is not usable; create one with NewConfig.
type Config struct {
	basePath           string
	createError        CreateError
	log                *slog.Logger
	validate           *validator.Validate
	queryDecoder       *schema.Decoder
	headerDecoder      *schema.Decoder
	formDecoder        *schema.Decoder
	maskInternalErrors bool
	maxRequestBodySize int64
}

// NewConfig returns a Config with defaults: no base path,
// DefaultCreateError, slog.Default and a 1MB request body limit.
func NewConfig() *Config {
	return &Config{
		createError:        DefaultCreateError,
		validate:           validator.New(validator.WithRequiredStructEnabled()),
		queryDecoder:       newDecoder("query"),
		headerDecoder:      newDecoder("header"),
		formDecoder:        newDecoder("form"),
		maxRequestBodySize: 1 << 20,
	}
}

// WithBasePath mounts every route under prefix. A trailing slash is ignored.
func (c *Config) WithBasePath(prefix string) *Config {
	c.basePath = strings.TrimRight(prefix, "/")
	return c
}

// WithCreateError replaces the function building request-time errors.
func (c *Config) WithCreateError(fn CreateError) *Config {
	if fn == nil {
		fn = DefaultCreateError
	}
	c.createError = fn
	return c
}

// WithLogger sets the logger for recovered panics and internal errors.
// If not set, slog.Default() will be used.
func (c *Config) WithLogger(logger *slog.Logger) *Config {
	c.log = logger
	return c
}

// WithValidator replaces the validator used by schema bindings, e.g. to
// register custom validations.
func (c *Config) WithValidator(v *validator.Validate) *Config {
	c.validate = v
	return c
}

// WithMaskInternalErrors hides the message of non-request errors behind
// "internal server error". The original error is still logged.
func (c *Config) WithMaskInternalErrors() *Config {
	c.maskInternalErrors = true
	return c
}

// WithMaxRequestBodySize limits request bodies. A value of 0 means no limit.
func (c *Config) WithMaxRequestBodySize(size int64) *Config {
	c.maxRequestBodySize = size
	return c
}

// BasePath returns the configured prefix.
func (c *Config) BasePath() string {
	return c.basePath
}

// Path mounts a route path such as "/users/{userId}" under the base path.
// The root route ("") matches the base path exactly.
func (c *Config) Path(path string) string {
	full := c.basePath + path
	if full == "" {
		return "/"
	}
	return full
}

func (c *Config) logger() *slog.Logger {
	if c.log == nil {
		return slog.Default()
	}
	return c.log
}
