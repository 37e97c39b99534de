package server

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// codeFromQuery reads a stream code from the query string. Besides ?code=XXXX
// it accepts the legacy share-link form ?=XXXX and a bare ?XXXX.
func codeFromQuery(c *fiber.Ctx) string {
	if code := strings.TrimSpace(c.Query("code")); code != "" {
		return code
	}

	raw := string(c.Request().URI().QueryString())
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err == nil {
		if code := strings.TrimSpace(values.Get("")); code != "" {
			return code
		}
	}
	if !strings.ContainsAny(raw, "=&") {
		if code, err := url.QueryUnescape(raw); err == nil {
			return strings.TrimSpace(code)
		}
	}
	return ""
}

// shareURL builds the public link for code.
func (s *Server) shareURL(code string) string {
	return s.config.PublicBaseURL + "/preview?code=" + url.QueryEscape(code)
}

// playerPath returns the frontend route that plays a descriptor of the given kind.
func playerPath(multi bool, code string) string {
	if multi {
		return "/mvm?code=" + url.QueryEscape(code)
	}
	return "/stream?code=" + url.QueryEscape(code)
}

var crawlerMarkers = []string{
	"bot",
	"crawler",
	"spider",
	"facebookexternalhit",
	"twitterbot",
	"whatsapp",
	"telegrambot",
	"slackbot",
	"linkedinbot",
}

// isCrawler reports whether a user agent belongs to a link-preview crawler.
func isCrawler(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, marker := range crawlerMarkers {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}
