package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single request unless the client overrides it
const DefaultTimeout = 10 * time.Second

// Encoding selects how Request.Params are put on the wire
type Encoding int

const (
	// JSONEncoding sends params as a JSON body
	JSONEncoding Encoding = iota
	// URLEncoding sends params in the query string for GET, HEAD and DELETE,
	// and as a form body for every other method
	URLEncoding
	// QueryEncoding always sends params in the query string
	QueryEncoding
)

func (e Encoding) String() string {
	switch e {
	case JSONEncoding:
		return "json"
	case URLEncoding:
		return "url"
	case QueryEncoding:
		return "query"
	default:
		return "unknown"
	}
}

// ParseEncoding maps json, url or query onto an Encoding
func ParseEncoding(value string) (Encoding, error) {
	switch strings.ToLower(value) {
	case "", "json":
		return JSONEncoding, nil
	case "url":
		return URLEncoding, nil
	case "query":
		return QueryEncoding, nil
	}
	return JSONEncoding, fmt.Errorf("unknown encoding %q", value)
}

// Request describes one HTTP call. It is built per call site, sent once
// through a Client and discarded.
type Request struct {
	// BasePath is prefixed to Endpoint. Empty means the client's base path.
	BasePath string
	Endpoint string
	Method   string
	Params   map[string]interface{}
	Headers  map[string]string
	Encoding Encoding
}

// URL is BasePath + Endpoint, concatenated as-is
func (r Request) URL() string {
	return r.BasePath + r.Endpoint
}

// absoluteURL parses URL and requires a scheme and a host
func (r Request) absoluteURL() (*url.URL, error) {
	u, err := url.Parse(r.URL())
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid request URL %q: not absolute", r.URL())
	}
	return u, nil
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// DefaultHeaders are sent with every request before Request.Headers
func DefaultHeaders() map[string]string {
	return map[string]string{"Accept": "application/json"}
}
