// Package api implements the grid editing HTTP API using chi.
package api

import (
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/rs/cors"

	"github.com/starford/gridedit/internal/apperr"
)

// CORSMiddleware returns middleware that allows the given origins. An empty
// list or "*" allows any origin.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "If-Match"},
		ExposedHeaders: []string{"ETag"},
	})
	return c.Handler
}

// pathGuard maps client file paths onto the content root. Client paths must
// start with prefix; the remainder is relative to the content root.
type pathGuard struct {
	prefix string
}

func newPathGuard(prefix string) pathGuard {
	prefix = strings.TrimPrefix(prefix, "./")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return pathGuard{prefix: prefix}
}

// inside returns the content-relative form of p or apperr.ErrInvalidPath.
func (g pathGuard) inside(p string) (string, error) {
	if !strings.HasPrefix(p, g.prefix) {
		return "", fmt.Errorf("api: %q outside %q: %w", p, g.prefix, apperr.ErrInvalidPath)
	}
	rel := path.Clean(strings.TrimPrefix(p, g.prefix))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("api: %q: %w", p, apperr.ErrInvalidPath)
	}
	return rel, nil
}

// outside returns the client form of a content-relative path.
func (g pathGuard) outside(rel string) string {
	if rel == "" {
		return ""
	}
	return g.prefix + rel
}
