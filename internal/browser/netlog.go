package browser

import (
	"strings"
	"sync"
)

// maxSampleURLs caps how many matched URLs are kept for diagnostics.
const maxSampleURLs = 10

// RequestLog is the rolling log of intercepted network requests for one
// session. Only requests matching the configured ad-endpoint patterns are
// counted; a sample of matched URLs is kept for debugging.
type RequestLog struct {
	mu       sync.Mutex
	patterns []string
	total    int
	matches  int
	samples  []string
}

// NewRequestLog creates a log matching against the given hostname/path
// substrings (case-insensitive).
func NewRequestLog(patterns []string) *RequestLog {
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			lowered = append(lowered, p)
		}
	}
	return &RequestLog{patterns: lowered}
}

// Observe records one outgoing request URL.
func (l *RequestLog) Observe(url string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	if !matchURL(l.patterns, url) {
		return
	}
	l.matches++
	if len(l.samples) < maxSampleURLs {
		l.samples = append(l.samples, url)
	}
}

// Matches returns how many requests matched an ad-endpoint pattern.
func (l *RequestLog) Matches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.matches
}

// Total returns how many requests were observed in total.
func (l *RequestLog) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Samples returns a copy of the matched URL sample.
func (l *RequestLog) Samples() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.samples))
	copy(out, l.samples)
	return out
}

func matchURL(patterns []string, url string) bool {
	lowered := strings.ToLower(url)
	for _, p := range patterns {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}
