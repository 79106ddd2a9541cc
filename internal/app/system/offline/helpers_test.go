package offline_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/guiafarma/internal/app/system/offline"
	"go.uber.org/zap"
)

const testOrigin = "http://farma.test/"

var errNetworkDown = errors.New("network unreachable")

// fakeNet is an in-memory network keyed by absolute URL.
type fakeNet struct {
	mu        sync.Mutex
	responses map[string]offline.Response
	failing   map[string]bool
	down      bool
	calls     map[string]int
}

func newFakeNet() *fakeNet {
	return &fakeNet{
		responses: make(map[string]offline.Response),
		failing:   make(map[string]bool),
		calls:     make(map[string]int),
	}
}

func (f *fakeNet) serve(url string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := make(http.Header)
	h.Set("Content-Type", "text/plain")
	f.responses[url] = offline.Response{Status: status, Header: h, Body: []byte(body), Type: offline.TypeBasic, URL: url}
}

// serveAs is serve with an explicit response type.
func (f *fakeNet) serveAs(url string, status int, body string, typ offline.ResponseType) {
	f.serve(url, status, body)
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := f.responses[url]
	resp.Type = typ
	f.responses[url] = resp
}

func (f *fakeNet) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeNet) fail(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[url] = true
}

func (f *fakeNet) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeNet) Fetch(_ context.Context, req offline.Request) (offline.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.URL]++
	if f.down || f.failing[req.URL] {
		return offline.Response{}, errNetworkDown
	}
	resp, ok := f.responses[req.URL]
	if !ok {
		return offline.Response{Status: http.StatusNotFound, Body: []byte("not found"), Type: offline.TypeBasic, URL: req.URL}, nil
	}
	return resp.Clone(), nil
}

// testConfig returns a small generation whose manifests fakeNet can serve.
func testConfig(version string) offline.Config {
	cfg := offline.DefaultConfig(testOrigin)
	cfg.Version = version
	cfg.Manifests = offline.Manifests{
		Static:  []string{"/", "/index.html", "/responsive.css"},
		Scripts: []string{"/js/i18n.js", "https://cdn.example.com/lib.js"},
		Images:  []string{"lab-hplc-system.jpg"},
	}
	return cfg
}

// seedManifest makes every URL of testConfig reachable.
func seedManifest(net *fakeNet) {
	net.serve("http://farma.test/", 200, "home")
	net.serve("http://farma.test/index.html", 200, "index")
	net.serve("http://farma.test/responsive.css", 200, "body{}")
	net.serve("http://farma.test/js/i18n.js", 200, "i18n()")
	net.serve("https://cdn.example.com/lib.js", 200, "lib()")
	net.serve("http://farma.test/lab-hplc-system.jpg", 200, "JPEG-1")
}

func newTestManager(t *testing.T, net *fakeNet) (*offline.Manager, *offline.MemoryRegistry) {
	t.Helper()
	reg := offline.NewMemoryRegistry()
	m := offline.NewManager(offline.Options{
		Registry: reg,
		Fetcher:  net,
		Logger:   zap.NewNop(),
		Origin:   testOrigin,
	})
	m.Start()
	t.Cleanup(m.Stop)
	return m, reg
}

func testContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func mustInstall(t *testing.T, m *offline.Manager, cfg offline.Config) {
	t.Helper()
	ctx, cancel := testContext()
	defer cancel()
	state, err := m.Install(ctx, cfg)
	if err != nil {
		t.Fatalf("Install(%s) failed: %v", cfg.Version, err)
	}
	if cfg.SkipWaiting && state != offline.StateActivated {
		t.Fatalf("state after install: got %q, want %q", state, offline.StateActivated)
	}
}

func get(t *testing.T, m *offline.Manager, url, dest string) offline.Result {
	t.Helper()
	ctx, cancel := testContext()
	defer cancel()
	res, err := m.Fetch(ctx, offline.Request{Method: http.MethodGet, URL: url, Destination: dest})
	if err != nil {
		t.Fatalf("Fetch(%s) failed: %v", url, err)
	}
	return res
}

func version(t *testing.T, m *offline.Manager) string {
	t.Helper()
	ctx, cancel := testContext()
	defer cancel()
	port := make(chan offline.Reply, 1)
	if err := m.PostMessage(ctx, offline.Message{Type: offline.MessageGetVersion, Port: port}); err != nil {
		t.Fatalf("GET_VERSION failed: %v", err)
	}
	return (<-port).Version
}
