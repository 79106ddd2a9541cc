package offline_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	offlinefeature "github.com/dalemusser/guiafarma/internal/app/features/offline"
	"github.com/dalemusser/guiafarma/internal/app/system/clientsession"
	"github.com/dalemusser/guiafarma/internal/app/system/limits"
	"github.com/dalemusser/guiafarma/internal/app/system/offline"
	"github.com/dalemusser/guiafarma/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// site is an upstream copy of the site that can be switched off.
type site struct {
	*httptest.Server
	mu       sync.Mutex
	down     bool
	lastPost string
}

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{}
	pages := map[string]string{
		"/":            "home",
		"/index.html":  "index",
		"/style.css":   "body{}",
		"/js/i18n.js":  "i18n()",
		"/lab.jpg":     "JPEG",
		"/api/version": `{"api":1}`,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		down := s.down
		if r.Method == http.MethodPost {
			b, _ := io.ReadAll(r.Body)
			s.lastPost = string(b)
		}
		s.mu.Unlock()
		if down {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			return
		}
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *site) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

type env struct {
	router http.Handler
	mgr    *offline.Manager
	site   *site
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := newSite(t)
	cfg := offline.DefaultConfig(s.URL + "/")
	cfg.Version = "v9"
	cfg.Manifests = offline.Manifests{
		Static:  []string{"/", "/index.html", "/style.css"},
		Scripts: []string{"/js/i18n.js"},
		Images:  []string{"lab.jpg"},
	}

	logger := zap.NewNop()
	mgr := offline.NewManager(offline.Options{
		Registry: offline.NewMemoryRegistry(),
		Fetcher:  offline.NewHTTPFetcher(s.Client(), cfg.Origin, 0),
		Logger:   logger,
		Origin:   cfg.Origin,
	})
	mgr.Start()
	t.Cleanup(mgr.Stop)

	ctx, cancel := testutil.TestContext()
	defer cancel()
	if _, err := mgr.Install(ctx, cfg); err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	sessions, err := clientsession.New("0123456789abcdef0123456789abcdef", "", "", false, logger)
	if err != nil {
		t.Fatalf("clientsession.New failed: %v", err)
	}
	h := offlinefeature.NewHandler(mgr, sessions, logger)

	r := chi.NewRouter()
	r.Mount("/offline", offlinefeature.Routes(h))
	return &env{router: r, mgr: mgr, site: s}
}

func (e *env) do(req *http.Request) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestServeFetch_CacheFirstWhileUpstreamDown(t *testing.T) {
	e := newEnv(t)
	e.site.Close()

	rec := e.do(testutil.NewRequest(http.MethodGet, "/offline/fetch?url=/style.css"))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertHeader(t, offlinefeature.SourceHeader, offline.SourceCache)
	if rec.Body.String() != "body{}" {
		t.Errorf("body: got %q, want %q", rec.Body.String(), "body{}")
	}

	rec = e.do(testutil.NewRequest(http.MethodGet, "/offline/fetch?url=/nao-existe.css"))
	rec.AssertStatus(t, http.StatusServiceUnavailable)
	rec.AssertHeader(t, offlinefeature.SourceHeader, offline.SourceSynthetic)
	rec.AssertContains(t, offline.DefaultOfflineText)
}

func TestServeFetch_NavigationFallback(t *testing.T) {
	e := newEnv(t)
	e.site.Close()

	rec := e.do(testutil.NewRequest(http.MethodGet, "/offline/fetch?url=/sobre&dest=document"))
	rec.AssertStatus(t, http.StatusOK)
	if rec.Body.String() != "index" {
		t.Errorf("body: got %q, want cached app document", rec.Body.String())
	}
}

func TestServeFetch_NetworkFirstErrorStatus(t *testing.T) {
	e := newEnv(t)
	e.site.setDown(true)

	// A 503 from upstream is a response, not a network failure.
	rec := e.do(testutil.NewRequest(http.MethodGet, "/offline/fetch?url=/api/version"))
	rec.AssertStatus(t, http.StatusServiceUnavailable)
	rec.AssertHeader(t, offlinefeature.SourceHeader, offline.SourceNetwork)
}

func TestServeFetch_PostPassesThrough(t *testing.T) {
	e := newEnv(t)

	req := testutil.NewJSONRequest(http.MethodPost, "/offline/fetch?url=/api/favoritos", `{"id":7}`)
	rec := e.do(req)
	rec.AssertStatus(t, http.StatusCreated)
	rec.AssertHeader(t, offlinefeature.SourceHeader, offline.SourcePassthrough)

	e.site.mu.Lock()
	got := e.site.lastPost
	e.site.mu.Unlock()
	if got != `{"id":7}` {
		t.Errorf("upstream body: got %q, want %q", got, `{"id":7}`)
	}
}

func TestServeFetch_MissingURL(t *testing.T) {
	e := newEnv(t)
	rec := e.do(testutil.NewRequest(http.MethodGet, "/offline/fetch"))
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestServeMessage(t *testing.T) {
	e := newEnv(t)

	rec := e.do(testutil.NewJSONRequest(http.MethodPost, "/offline/message", `{"type":"GET_VERSION"}`))
	rec.AssertStatus(t, http.StatusOK)
	var reply offline.Reply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if reply.Version != "v9" {
		t.Errorf("version: got %q, want %q", reply.Version, "v9")
	}

	rec = e.do(testutil.NewJSONRequest(http.MethodPost, "/offline/message", `{"type":"SKIP_WAITING"}`))
	rec.AssertStatus(t, http.StatusNoContent)

	rec = e.do(testutil.NewJSONRequest(http.MethodPost, "/offline/message", `{"type":"PURGE"}`))
	rec.AssertStatus(t, http.StatusBadRequest)

	rec = e.do(testutil.NewJSONRequest(http.MethodPost, "/offline/message", `not json`))
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestPermissionPushAndClick(t *testing.T) {
	e := newEnv(t)

	// First contact issues the client cookie.
	first := e.do(testutil.NewRequest(http.MethodGet, "/offline/permission"))
	first.AssertStatus(t, http.StatusOK)
	first.AssertContains(t, `"permission":"default"`)

	// Push before permission reaches nobody.
	rec := e.do(testutil.WithCookies(testutil.NewRequest(http.MethodPost, "/offline/push"), first))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"delivered":0`)

	granted := e.do(testutil.WithCookies(
		testutil.NewJSONRequest(http.MethodPost, "/offline/permission", `{"decision":"granted"}`), first))
	granted.AssertStatus(t, http.StatusOK)
	granted.AssertContains(t, `"permission":"granted"`)
	granted.AssertContains(t, `"prompted":true`)

	push := httptest.NewRequest(http.MethodPost, "/offline/push", strings.NewReader("<b>Novo conteúdo</b>"))
	rec = e.do(testutil.WithCookies(push, granted))
	rec.AssertStatus(t, http.StatusOK)
	var pushed struct {
		Delivered     int `json:"delivered"`
		Notifications []struct {
			ID   string `json:"id"`
			Body string `json:"body"`
		} `json:"notifications"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &pushed); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if pushed.Delivered != 1 || pushed.Notifications[0].Body != "Novo conteúdo" {
		t.Fatalf("push: got %+v", pushed)
	}

	rec = e.do(testutil.WithCookies(testutil.NewRequest(http.MethodGet, "/offline/notifications"), granted))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, pushed.Notifications[0].ID)

	click := testutil.NewJSONRequest(http.MethodPost,
		"/offline/notifications/"+pushed.Notifications[0].ID+"/click", `{"action":"explore"}`)
	rec = e.do(testutil.WithCookies(click, granted))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"opened":true`)

	// Clicking again: the notification is gone.
	click = testutil.NewJSONRequest(http.MethodPost,
		"/offline/notifications/"+pushed.Notifications[0].ID+"/click", `{"action":"explore"}`)
	rec = e.do(testutil.WithCookies(click, granted))
	rec.AssertStatus(t, http.StatusNotFound)

	// Granted is not prompted again.
	rec = e.do(testutil.WithCookies(
		testutil.NewJSONRequest(http.MethodPost, "/offline/permission", `{"decision":"denied"}`), granted))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"permission":"granted"`)

	revoked := e.do(testutil.WithCookies(
		testutil.NewJSONRequest(http.MethodPost, "/offline/permission", `{"decision":"revoke"}`), granted))
	revoked.AssertStatus(t, http.StatusOK)
	revoked.AssertContains(t, `"permission":"default"`)

	rec = e.do(testutil.WithCookies(testutil.NewRequest(http.MethodPost, "/offline/push"), revoked))
	rec.AssertContains(t, `"delivered":0`)
}

func TestServeRequestPermission_BadDecision(t *testing.T) {
	e := newEnv(t)
	rec := e.do(testutil.NewJSONRequest(http.MethodPost, "/offline/permission", `{"decision":"maybe"}`))
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestServeSync(t *testing.T) {
	e := newEnv(t)

	rec := e.do(testutil.NewJSONRequest(http.MethodPost, "/offline/sync", `{"tag":"background-sync"}`))
	rec.AssertStatus(t, http.StatusNoContent)

	rec = e.do(testutil.NewJSONRequest(http.MethodPost, "/offline/sync", `{"tag":"other"}`))
	rec.AssertStatus(t, http.StatusBadRequest)

	e.site.setDown(true)
	rec = e.do(testutil.NewJSONRequest(http.MethodPost, "/offline/sync", `{"tag":"background-sync"}`))
	rec.AssertStatus(t, http.StatusBadGateway)
}

func TestServeStatus(t *testing.T) {
	e := newEnv(t)

	rec := e.do(testutil.NewRequest(http.MethodGet, "/offline/status"))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertHeader(t, "Content-Type", "application/json")

	var st offline.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if st.State != offline.StateActivated || st.ActiveVersion != "v9" {
		t.Errorf("got state %q version %q", st.State, st.ActiveVersion)
	}
	if len(st.Partitions) != 3 {
		t.Errorf("partitions: got %d, want 3", len(st.Partitions))
	}
}

func TestServePush_RateLimited(t *testing.T) {
	e := newEnv(t)

	for i := 0; i < limits.PushRequests; i++ {
		rec := e.do(testutil.NewRequest(http.MethodPost, "/offline/push"))
		rec.AssertStatus(t, http.StatusOK)
	}

	rec := e.do(testutil.NewRequest(http.MethodPost, "/offline/push"))
	rec.AssertStatus(t, http.StatusTooManyRequests)
	rec.AssertHeader(t, "Retry-After", "60")
}

func TestServeFetch_RefusesForeignHosts(t *testing.T) {
	e := newEnv(t)

	var hits int
	var mu sync.Mutex
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.Write([]byte("INTERNAL-SECRET"))
	}))
	defer internal.Close()

	target := "/offline/fetch?url=" + internal.URL + "/admin/creds"
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := e.do(testutil.NewRequest(method, target))
		rec.AssertStatus(t, http.StatusForbidden)
		if strings.Contains(rec.Body.String(), "INTERNAL-SECRET") {
			t.Errorf("%s: foreign body leaked", method)
		}
	}

	internal.Close()
	rec := e.do(testutil.NewRequest(http.MethodGet, target))
	rec.AssertStatus(t, http.StatusForbidden)

	mu.Lock()
	defer mu.Unlock()
	if hits != 0 {
		t.Errorf("foreign host contacted %d times", hits)
	}
}

func TestServeFetch_TracksOnlyReturningBrowsers(t *testing.T) {
	e := newEnv(t)

	for i := 0; i < 50; i++ {
		rec := e.do(testutil.NewRequest(http.MethodGet, "/offline/fetch?url=/&dest=document"))
		rec.AssertStatus(t, http.StatusOK)
	}
	st := status(t, e, nil)
	if st.Clients != 0 {
		t.Errorf("clients after cookieless fetches: got %d, want 0", st.Clients)
	}

	first := e.do(testutil.NewRequest(http.MethodGet, "/offline/fetch?url=/&dest=document"))
	rec := e.do(testutil.WithCookies(testutil.NewRequest(http.MethodGet, "/offline/fetch?url=/&dest=document"), first))
	rec.AssertStatus(t, http.StatusOK)

	st = status(t, e, first)
	if st.Clients != 1 {
		t.Errorf("clients: got %d, want 1", st.Clients)
	}
	if st.Client == nil || st.Client.Controller != "v9" {
		t.Errorf("own client: got %+v, want one controlled by v9", st.Client)
	}
}

func TestServeMessage_GetVersionBeforeActivation(t *testing.T) {
	logger := zap.NewNop()
	mgr := offline.NewManager(offline.Options{
		Registry: offline.NewMemoryRegistry(),
		Fetcher:  offline.NewHTTPFetcher(nil, "http://farma.test/", 0),
		Logger:   logger,
		Origin:   "http://farma.test/",
	})
	mgr.Start()
	t.Cleanup(mgr.Stop)
	sessions, err := clientsession.New("0123456789abcdef0123456789abcdef", "", "", false, logger)
	if err != nil {
		t.Fatalf("clientsession.New failed: %v", err)
	}
	r := chi.NewRouter()
	r.Mount("/offline", offlinefeature.Routes(offlinefeature.NewHandler(mgr, sessions, logger)))

	rec := testutil.NewRecorder()
	r.ServeHTTP(rec, testutil.NewJSONRequest(http.MethodPost, "/offline/message", `{"type":"GET_VERSION"}`))
	rec.AssertStatus(t, http.StatusServiceUnavailable)
}

type statusBody struct {
	offline.Status
	Client *offline.Client `json:"client"`
}

func status(t *testing.T, e *env, cookies *testutil.ResponseRecorder) statusBody {
	t.Helper()
	req := testutil.NewRequest(http.MethodGet, "/offline/status")
	if cookies != nil {
		req = testutil.WithCookies(req, cookies)
	}
	rec := e.do(req)
	rec.AssertStatus(t, http.StatusOK)
	var st statusBody
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("failed to parse status: %v", err)
	}
	return st
}
