package tracker

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHeader(t *testing.T) {
	h := http.Header{
		"Traceparent":       {"00-abc-def-01"},
		"HTTP_USER_AGENT":   {"curl/8.0"},
		"X_Custom_Header":   {"v1"},
		"Accept":            {"application/json", "text/plain"},
		"X-Empty-Value-Key": {},
	}

	c := NormalizeHeader(h)

	assert.Equal(t, "00-abc-def-01", c["traceparent"])
	assert.Equal(t, "curl/8.0", c["user-agent"], "protocol prefix must be stripped after underscore replacement")
	assert.Equal(t, "v1", c["x-custom-header"])
	assert.Equal(t, "application/json", c["accept"], "only the first value is kept")
	_, ok := c["x-empty-value-key"]
	assert.False(t, ok, "valueless headers are dropped")
}

func TestCarrierTextMapInterface(t *testing.T) {
	c := Carrier{}

	c.Set("TraceParent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.Equal(t, "00-abc-def-01", c.Get("TRACEPARENT"), "lookups are case-insensitive")

	c.Set("HTTP_Baggage", "k=v")
	assert.Equal(t, "k=v", c.Get("baggage"))

	assert.ElementsMatch(t, []string{"traceparent", "baggage"}, c.Keys())
}
