// internal/app/system/offline/fetcher.go
package offline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// Fetcher performs network requests for the strategies. A returned error
// means the network could not be reached; HTTP error statuses come back as
// a Response.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// HTTPFetcher fetches over net/http.
type HTTPFetcher struct {
	Client *http.Client

	// Origin decides between basic and cors response types.
	Origin string

	// MaxBodyBytes caps how much of a body is buffered. Zero means
	// DefaultMaxEntryBytes.
	MaxBodyBytes int64
}

// NewHTTPFetcher builds an HTTPFetcher for the given origin.
func NewHTTPFetcher(client *http.Client, origin string, maxBody int64) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{Client: client, Origin: origin, MaxBodyBytes: maxBody}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}

	hresp, err := f.Client.Do(hreq)
	if err != nil {
		return Response{}, err
	}
	defer hresp.Body.Close()

	limit := f.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxEntryBytes
	}
	data, err := io.ReadAll(io.LimitReader(hresp.Body, limit+1))
	if err != nil {
		return Response{}, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return Response{}, fmt.Errorf("response body for %s exceeds %d bytes", req.URL, limit)
	}

	// Redirects may leave the origin; the type follows the final URL.
	final := req.URL
	if hresp.Request != nil && hresp.Request.URL != nil {
		final = hresp.Request.URL.String()
	}
	return Response{
		Status: hresp.StatusCode,
		Header: hresp.Header.Clone(),
		Body:   data,
		Type:   f.responseType(final, hresp.Header),
		URL:    final,
	}, nil
}

// responseType classifies a response the way a browser would: same-origin
// is basic, cross-origin with an Access-Control-Allow-Origin header is
// cors, any other cross-origin response is opaque.
func (f *HTTPFetcher) responseType(raw string, h http.Header) ResponseType {
	o := originOf(f.Origin)
	if o != "" && originOf(raw) == o {
		return TypeBasic
	}
	if h.Get("Access-Control-Allow-Origin") != "" {
		return TypeCORS
	}
	return TypeOpaque
}
