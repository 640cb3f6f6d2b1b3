package middleware

import (
	"mime"
	"net/http"
	"strings"
)

// BodyLimitOverride raises or lowers the body cap for requests under
// PathPrefix. With MediaType set, only requests of that media type match.
type BodyLimitOverride struct {
	PathPrefix string
	MediaType  string
	MaxBytes   int64
}

func (o BodyLimitOverride) matches(r *http.Request) bool {
	if o.PathPrefix == "" || o.MaxBytes <= 0 {
		return false
	}
	path := r.URL.Path
	if !strings.HasPrefix(path, o.PathPrefix) && !strings.HasPrefix(strings.TrimPrefix(path, "/api"), o.PathPrefix) {
		return false
	}
	if o.MediaType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.EqualFold(mediaType, o.MediaType)
}

func LimitBodyBytes(maxBytes int64) func(http.Handler) http.Handler {
	return LimitBodyBytesWithOverrides(maxBytes, nil)
}

// LimitBodyBytesWithOverrides caps request bodies at defaultMax unless the
// first matching override applies. A non-positive limit disables the cap.
func LimitBodyBytesWithOverrides(defaultMax int64, overrides []BodyLimitOverride) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			maxBytes := defaultMax
			for _, override := range overrides {
				if override.matches(r) {
					maxBytes = override.MaxBytes
					break
				}
			}
			if maxBytes > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
