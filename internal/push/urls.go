package push

import (
	"net/url"
	"strings"

	"github.com/nhle/authnotify/internal/model"
)

const (
	defaultPath  = "/api/notifications/ws"
	loopbackHost = "ws://127.0.0.1:8000"
)

// CandidateURLs lists the endpoints to try, in order: the configured
// direct URL, the push path on the API origin, the proxy path on the API
// origin, and finally the loopback host. Duplicates are dropped and the
// token is appended as a query parameter.
func CandidateURLs(cfg model.PushConfig, baseURL, token string) []string {
	path := cfg.Path
	if path == "" {
		path = defaultPath
	}

	var urls []string
	seen := make(map[string]bool)
	add := func(raw string) {
		if raw == "" {
			return
		}
		sep := "?"
		if strings.Contains(raw, "?") {
			sep = "&"
		}
		u := raw + sep + "token=" + url.QueryEscape(token)
		if seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}

	add(cfg.DirectURL)
	if origin := wsOrigin(baseURL); origin != "" {
		add(origin + path)
		if cfg.ProxyPath != "" {
			add(origin + cfg.ProxyPath)
		}
	}
	add(loopbackHost + path)

	return urls
}

// wsOrigin converts an http(s) base URL into its ws(s) origin.
func wsOrigin(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "http", "ws":
		return "ws://" + u.Host
	case "https", "wss":
		return "wss://" + u.Host
	default:
		return ""
	}
}

// redact strips the query string so tokens stay out of logs.
func redact(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
