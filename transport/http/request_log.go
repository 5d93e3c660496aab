package http

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/keyvault/core"
)

// DefaultRequestLogSize bounds the in-memory request log
const DefaultRequestLogSize = 1000

// RequestEntry is one line of the monitoring log. Only a short prefix of
// the presented API key is kept.
type RequestEntry struct {
	KeyPrefix string    `json:"api_key"`
	IP        string    `json:"ip"`
	Method    string    `json:"method"`
	Endpoint  string    `json:"endpoint"`
	Status    int       `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// RequestLog keeps the most recent requests in a fixed-size ring
type RequestLog struct {
	mu      sync.Mutex
	entries []RequestEntry
	next    int
	full    bool
}

// NewRequestLog creates a log holding at most size entries
func NewRequestLog(size int) *RequestLog {
	if size <= 0 {
		size = DefaultRequestLogSize
	}
	return &RequestLog{entries: make([]RequestEntry, size)}
}

func (l *RequestLog) Add(e RequestEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
}

// Entries returns the log oldest first
func (l *RequestLog) Entries() []RequestEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		return append([]RequestEntry(nil), l.entries[:l.next]...)
	}
	out := make([]RequestEntry, 0, len(l.entries))
	out = append(out, l.entries[l.next:]...)
	return append(out, l.entries[:l.next]...)
}

// Middleware records every request after it has been handled
func (l *RequestLog) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		l.Add(RequestEntry{
			KeyPrefix: credentialPrefix(c),
			IP:        c.ClientIP(),
			Method:    c.Request.Method,
			Endpoint:  trimmed(c.Request.URL.Path, 256),
			Status:    c.Writer.Status(),
			Timestamp: time.Now().UTC(),
		})
	}
}

func credentialPrefix(c *gin.Context) string {
	if key := c.GetHeader(headerAPIKey); key != "" {
		const visible = len(core.APIKeyPrefix) + 4
		if len(key) <= visible {
			return "invalid"
		}
		return key[:visible] + "..."
	}
	if _, ok := bearerToken(c.GetHeader("Authorization")); ok {
		return "session"
	}
	return "N/A"
}

// trimmed keeps log endpoints readable when a path is unexpectedly long
func trimmed(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
