package offline_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/guiafarma/internal/app/system/offline"
)

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/big":
			w.Write([]byte(strings.Repeat("x", 64)))
		case "/moved":
			http.Redirect(w, r, "/echo", http.StatusFound)
		case "/echo":
			w.Header().Set("X-Echo", r.Header.Get("Cache-Control"))
			w.Write([]byte("ok"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	f := offline.NewHTTPFetcher(srv.Client(), srv.URL+"/", 32)

	h := make(http.Header)
	h.Set("Cache-Control", "no-cache")
	resp, err := f.Fetch(ctx, offline.Request{URL: srv.URL + "/echo", Header: h})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if resp.Status != 200 || string(resp.Body) != "ok" {
		t.Errorf("got %d %q", resp.Status, resp.Body)
	}
	if resp.Type != offline.TypeBasic {
		t.Errorf("type: got %q, want basic", resp.Type)
	}
	if resp.Header.Get("X-Echo") != "no-cache" {
		t.Errorf("request headers not forwarded")
	}

	resp, err = f.Fetch(ctx, offline.Request{URL: srv.URL + "/missing"})
	if err != nil {
		t.Fatalf("404 should not be an error: %v", err)
	}
	if resp.Status != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", resp.Status)
	}

	if _, err := f.Fetch(ctx, offline.Request{URL: srv.URL + "/big"}); err == nil {
		t.Error("expected body over the limit to fail")
	}

	resp, err = f.Fetch(ctx, offline.Request{URL: srv.URL + "/moved"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if resp.URL != srv.URL+"/echo" {
		t.Errorf("url after redirect: got %q, want %q", resp.URL, srv.URL+"/echo")
	}
}

func TestHTTPFetcher_CrossOriginTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cors" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cross := offline.NewHTTPFetcher(srv.Client(), "http://farma.test/", 0)
	tests := []struct {
		path string
		want offline.ResponseType
	}{
		{"/cors", offline.TypeCORS},
		{"/plain", offline.TypeOpaque},
	}
	for _, tt := range tests {
		resp, err := cross.Fetch(context.Background(), offline.Request{URL: srv.URL + tt.path})
		if err != nil {
			t.Fatalf("Fetch %s failed: %v", tt.path, err)
		}
		if resp.Type != tt.want {
			t.Errorf("%s type: got %q, want %q", tt.path, resp.Type, tt.want)
		}
	}
}

func TestHTTPFetcher_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := offline.NewHTTPFetcher(nil, url+"/", 0)
	if _, err := f.Fetch(context.Background(), offline.Request{URL: url + "/"}); err == nil {
		t.Error("expected error for closed server")
	}
}
