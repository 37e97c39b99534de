// Package featureflags evaluates runtime toggles from the FEATURE_FLAGS setting.
package featureflags

import (
	"hash/fnv"
	"maps"
	"strconv"
	"strings"
)

// Flags understood by the service.
const (
	// ResolveCache serves code lookups through Redis.
	ResolveCache = "resolve_cache"
	// OGPreview renders link-preview pages for crawlers on /preview.
	OGPreview = "og_preview"
)

// rule is a parsed flag value: fully on, fully off, or a percentage of subjects.
type rule struct {
	raw     string
	percent int
}

func parseRule(value string) rule {
	switch value {
	case "on", "true", "1":
		return rule{raw: value, percent: 100}
	case "off", "false", "0":
		return rule{raw: value}
	}
	if pct, ok := strings.CutSuffix(value, "%"); ok {
		if n, err := strconv.Atoi(pct); err == nil {
			return rule{raw: value, percent: min(max(n, 0), 100)}
		}
	}
	return rule{raw: value}
}

// Manager evaluates flags configured as "name=value" pairs, for example
// "resolve_cache=on,og_preview=25%". Values are on/true/1, off/false/0 or N%.
// Unknown or malformed values are off.
type Manager struct {
	rules map[string]rule
}

// NewManager parses a comma-separated flag list. Malformed pairs are skipped.
func NewManager(raw string) *Manager {
	rules := make(map[string]rule)
	for pair := range strings.SplitSeq(raw, ",") {
		name, value, ok := strings.Cut(pair, "=")
		name, value = normalize(name), normalize(value)
		if !ok || name == "" || value == "" {
			continue
		}
		rules[name] = parseRule(value)
	}
	return &Manager{rules: rules}
}

// Enabled reports whether flag name is on for subject. Percentage rollouts
// hash the flag and subject together, so a given client IP lands in the same
// bucket on every replica; an empty subject is never inside a partial rollout.
func (m *Manager) Enabled(name, subject string) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	switch {
	case !ok || r.percent == 0:
		return false
	case r.percent == 100:
		return true
	case subject == "":
		return false
	default:
		return rolloutBucket(name, subject) < r.percent
	}
}

// Raw returns the configured value of every flag.
func (m *Manager) Raw() map[string]string {
	out := map[string]string{}
	if m == nil {
		return out
	}
	for name, r := range m.rules {
		out[name] = r.raw
	}
	return out
}

// Snapshot evaluates every configured flag for subject.
func (m *Manager) Snapshot(subject string) map[string]bool {
	out := map[string]bool{}
	if m == nil {
		return out
	}
	for name := range maps.Keys(m.rules) {
		out[name] = m.Enabled(name, subject)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name, subject string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + subject))
	return int(h.Sum32() % 100)
}
