package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestLog_Ring(t *testing.T) {
	l := NewRequestLog(3)
	assert.Empty(t, l.Entries())

	for _, status := range []int{1, 2} {
		l.Add(RequestEntry{Status: status})
	}
	assert.Equal(t, []int{1, 2}, statuses(l.Entries()))

	for _, status := range []int{3, 4, 5} {
		l.Add(RequestEntry{Status: status})
	}
	assert.Equal(t, []int{3, 4, 5}, statuses(l.Entries()))
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	tok, ok = bearerToken("bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	_, ok = bearerToken("Bearer ")
	assert.False(t, ok)
	_, ok = bearerToken("Basic abc")
	assert.False(t, ok)
}

func statuses(entries []RequestEntry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Status
	}
	return out
}
