package offlinecache_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// newSite serves a tiny copy of the site for install tests.
func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/":           "home",
		"/index.html": "index",
		"/js/i18n.js": "i18n()",
		"/lab.jpg":    "JPEG",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}
