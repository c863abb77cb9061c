package tracker

import (
	"net/http"
	"strings"
)

// Carrier is a normalized, header-like text map fed to the propagator during
// extraction. Keys are lower-cased, underscores become hyphens, and a leading
// "http-" protocol prefix is stripped, so carriers populated by proxies or
// CGI-style gateways still line up with what the propagator expects.
type Carrier map[string]string

// NormalizeHeader builds a Carrier from inbound request headers. Only the
// first value of each header is kept, matching what trace propagation formats
// carry.
func NormalizeHeader(h http.Header) Carrier {
	c := make(Carrier, len(h))
	for k, vals := range h {
		if len(vals) == 0 {
			continue
		}
		c[normalizeKey(k)] = vals[0]
	}
	return c
}

func normalizeKey(k string) string {
	k = strings.ToLower(k)
	k = strings.ReplaceAll(k, "_", "-")
	return strings.TrimPrefix(k, "http-")
}

// Get implements propagation.TextMapCarrier.
func (c Carrier) Get(key string) string {
	return c[normalizeKey(key)]
}

// Set implements propagation.TextMapCarrier.
func (c Carrier) Set(key, value string) {
	c[normalizeKey(key)] = value
}

// Keys implements propagation.TextMapCarrier.
func (c Carrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
