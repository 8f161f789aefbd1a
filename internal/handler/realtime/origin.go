package realtime

import (
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

// NewCheckOrigin allows requests without an Origin header (non-browser
// viewers), the configured client origin, and any origin when allowedOrigin
// is "*". Localhost origins are accepted in development.
func NewCheckOrigin(allowedOrigin string, isDevelopment bool, log zerolog.Logger) func(r *http.Request) bool {
	wildcard := allowedOrigin == "*"
	appOrigin := extractOrigin(allowedOrigin)

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		switch {
		case origin == "", wildcard:
			return true
		case appOrigin != "" && origin == appOrigin:
			return true
		case isDevelopment && isLocalhostOrigin(origin):
			return true
		}

		log.Warn().Str("origin", origin).Str("remote_addr", r.RemoteAddr).Msg("websocket origin rejected")
		return false
	}
}

func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}
