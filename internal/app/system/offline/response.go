// internal/app/system/offline/response.go
package offline

import (
	"net/http"
	"strings"
)

// ResponseType mirrors the fetch response types that matter for caching.
type ResponseType string

const (
	TypeBasic     ResponseType = "basic"     // same-origin response
	TypeCORS      ResponseType = "cors"      // cross-origin response with readable body
	TypeOpaque    ResponseType = "opaque"    // cross-origin response that must not be cached
	TypeSynthetic ResponseType = "synthetic" // built locally when cache and network both failed
)

// Request is an intercepted page request.
//
// Destination carries the browser's request destination hint ("document",
// "style", "script", "image", ...). It may be empty.
type Request struct {
	Method      string
	URL         string
	Destination string
	Header      http.Header
	Body        []byte
}

// IsGet reports whether the request uses GET. Only GET requests are
// intercepted or cached.
func (r Request) IsGet() bool {
	return r.Method == "" || strings.EqualFold(r.Method, http.MethodGet)
}

// RequestKey identifies a stored response inside a partition.
type RequestKey struct {
	Method string
	URL    string
}

// Key returns the cache identity for the request. The URL is expected to be
// resolved already (see Config.Resolve).
func (r Request) Key() RequestKey {
	m := strings.ToUpper(r.Method)
	if m == "" {
		m = http.MethodGet
	}
	return RequestKey{Method: m, URL: r.URL}
}

// Response is a fully buffered response.
//
// It is a value type: a strategy that both returns a response and stores it
// hands the registry a Clone so the two copies never share header maps or
// body bytes.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Type   ResponseType
	URL    string
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Cacheable reports whether the response may be written to a partition.
func (r Response) Cacheable() bool {
	return r.OK() && r.Type != TypeOpaque && r.Type != TypeSynthetic
}

// Clone returns an independent copy of the response.
func (r Response) Clone() Response {
	out := r
	if r.Header != nil {
		out.Header = r.Header.Clone()
	}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}

// Synthetic builds a locally generated plain-text response.
func Synthetic(status int, text string) Response {
	h := make(http.Header)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return Response{
		Status: status,
		Header: h,
		Body:   []byte(text),
		Type:   TypeSynthetic,
	}
}
