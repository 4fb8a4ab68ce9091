package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/broady/routetree"
)

// CORSConfig holds the configuration for CORS handling.
type CORSConfig struct {
	// AllowOrigins is a list of origins a cross-domain request can be executed from.
	// If the list contains "*", all origins are allowed.
	// Default: ["*"]
	AllowOrigins []string

	// AllowMethods is a list of methods the client is allowed to use.
	// Default: ["GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"]
	AllowMethods []string

	// AllowHeaders is a list of headers the client is allowed to use.
	// Default: ["Content-Type", "Authorization"]
	AllowHeaders []string

	// ExposeHeaders indicates which headers are safe to expose.
	ExposeHeaders []string

	// AllowCredentials indicates whether the request can include credentials.
	AllowCredentials bool

	// MaxAge indicates how long (in seconds) the results of a preflight request can be cached.
	// Default: 0 (not set)
	MaxAge int
}

type cors struct {
	cfg     CORSConfig
	methods string
	headers string
	exposed string
}

func newCORS(cfg *CORSConfig) *cors {
	c := &cors{}
	if cfg != nil {
		c.cfg = *cfg
	}
	if len(c.cfg.AllowOrigins) == 0 {
		c.cfg.AllowOrigins = []string{"*"}
	}
	if len(c.cfg.AllowMethods) == 0 {
		c.cfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(c.cfg.AllowHeaders) == 0 {
		c.cfg.AllowHeaders = []string{"Content-Type", "Authorization"}
	}
	c.methods = strings.Join(c.cfg.AllowMethods, ", ")
	c.headers = strings.Join(c.cfg.AllowHeaders, ", ")
	c.exposed = strings.Join(c.cfg.ExposeHeaders, ", ")
	return c
}

// apply sets the CORS headers for r and answers preflight requests.
// It reports whether it wrote a response.
func (c *cors) apply(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	wildcard := slices.Contains(c.cfg.AllowOrigins, "*")

	if wildcard || (origin != "" && slices.Contains(c.cfg.AllowOrigins, origin)) {
		// "*" is not allowed together with credentials, so the origin is
		// echoed back instead.
		switch {
		case origin != "" && !wildcard:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		case origin != "" && c.cfg.AllowCredentials:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		default:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		if c.cfg.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
	}
	if c.exposed != "" {
		w.Header().Set("Access-Control-Expose-Headers", c.exposed)
	}

	if r.Method != http.MethodOptions {
		return false
	}
	w.Header().Set("Access-Control-Allow-Methods", c.methods)
	w.Header().Set("Access-Control-Allow-Headers", c.headers)
	if c.cfg.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(c.cfg.MaxAge))
	}
	w.WriteHeader(http.StatusNoContent)
	return true
}

// CORS returns an HTTP middleware that handles CORS preflight requests and
// sets CORS headers. Wrap the router with it when preflight requests must be
// answered for routes that do not declare an Options method.
// A nil cfg allows every origin.
func CORS(cfg *CORSConfig) func(http.Handler) http.Handler {
	c := newCORS(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c.apply(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSHook is CORS as an OnRequest hook, for use in a directory's hooks.go.
// Preflight requests are answered by the hook and never reach the handler.
func CORSHook(cfg *CORSConfig) routetree.HookFunc {
	c := newCORS(cfg)
	return func(w http.ResponseWriter, r *http.Request) error {
		c.apply(w, r)
		return nil
	}
}
