// internal/app/features/offline/handler.go
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dalemusser/guiafarma/internal/app/system/clientsession"
	"github.com/dalemusser/guiafarma/internal/app/system/limits"
	"github.com/dalemusser/guiafarma/internal/app/system/notify"
	cache "github.com/dalemusser/guiafarma/internal/app/system/offline"
	"github.com/dalemusser/guiafarma/internal/app/system/ratelimit"
	"github.com/dalemusser/guiafarma/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SourceHeader tells the page where a fetched response came from.
const SourceHeader = "X-Offline-Source"

// Handler exposes the offline cache manager over HTTP.
type Handler struct {
	Manager   *cache.Manager
	Sessions  *clientsession.Manager
	PushLimit *ratelimit.Limiter
	Log       *zap.Logger
}

// NewHandler creates a new offline handler.
func NewHandler(mgr *cache.Manager, sessions *clientsession.Manager, logger *zap.Logger) *Handler {
	return &Handler{
		Manager:   mgr,
		Sessions:  sessions,
		PushLimit: ratelimit.New(limits.PushRequests, limits.PushWindow),
		Log:       logger,
	}
}

// observePermission reports the browser's stored permission to the
// notifier on every request, so revocations are seen on the next check.
// Browsers that have not sent their cookie back yet are not tracked.
func (h *Handler) observePermission(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := clientsession.Current(r); ok && c.Returning {
			h.Manager.Notifier().Observe(c.ID, c.Permission)
		}
		next.ServeHTTP(w, r)
	})
}

// ServeFetch handles ANY /offline/fetch?url=...&dest=...
//
// GET requests go through the cache strategies; everything else, and every
// request while no generation is active, goes straight to the network.
// The X-Offline-Source header is cache, network, synthetic or passthrough.
func (h *Handler) ServeFetch(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	dest := r.URL.Query().Get("dest")
	if dest == "" {
		dest = r.Header.Get("Sec-Fetch-Dest")
	}

	req := cache.Request{
		Method:      r.Method,
		URL:         target,
		Destination: dest,
		Header:      forwardHeaders(r.Header),
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Body != nil {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limits.MaxFetchBody))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		req.Body = body
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Fetch())
	defer cancel()

	res, err := h.Manager.Fetch(ctx, req)
	if err != nil {
		h.fail(w, "fetch", err)
		return
	}

	if c, ok := clientsession.Current(r); ok && c.Returning && dest == "document" {
		if _, err := h.Manager.RegisterClient(ctx, c.ID, target); err != nil {
			h.Log.Warn("failed to register client", zap.String("client_id", c.ID), zap.Error(err))
		}
	}

	if !res.Intercepted {
		resp, err := h.Manager.Passthrough(ctx, req)
		if errors.Is(err, cache.ErrForeignURL) {
			h.fail(w, "passthrough", err)
			return
		}
		if err != nil {
			h.Log.Info("passthrough failed", zap.String("url", target), zap.Error(err))
			writeError(w, http.StatusBadGateway, "network error")
			return
		}
		writeResponse(w, resp, cache.SourcePassthrough)
		return
	}
	writeResponse(w, res.Response, res.Source)
}

type messageRequest struct {
	Type string `json:"type"`
}

// ServeMessage handles POST /offline/message.
//
//	{"type":"GET_VERSION"}  → 200 {"version":"v2"}
//	{"type":"SKIP_WAITING"} → 204
func (h *Handler) ServeMessage(w http.ResponseWriter, r *http.Request) {
	var in messageRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Activate())
	defer cancel()

	port := make(chan cache.Reply, 1)
	if err := h.Manager.PostMessage(ctx, cache.Message{Type: in.Type, Port: port}); err != nil {
		h.fail(w, "message", err)
		return
	}
	select {
	case reply := <-port:
		writeJSON(w, http.StatusOK, reply)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type pushResponse struct {
	Delivered     int                   `json:"delivered"`
	Notifications []notify.Notification `json:"notifications"`
}

// ServePush handles POST /offline/push. The body is the push payload text.
func (h *Handler) ServePush(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limits.MaxPushPayload))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Store())
	defer cancel()

	shown, err := h.Manager.Push(ctx, payload)
	if err != nil {
		h.fail(w, "push", err)
		return
	}
	if shown == nil {
		shown = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, pushResponse{Delivered: len(shown), Notifications: shown})
}

// ServeNotifications handles GET /offline/notifications: this browser's
// open notifications, oldest first.
func (h *Handler) ServeNotifications(w http.ResponseWriter, r *http.Request) {
	c, ok := clientsession.Current(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "no client")
		return
	}
	open := h.Manager.Notifier().Open(c.ID)
	if open == nil {
		open = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, open)
}

type clickRequest struct {
	Action string `json:"action"`
}

// ServeClick handles POST /offline/notifications/{id}/click.
func (h *Handler) ServeClick(w http.ResponseWriter, r *http.Request) {
	c, ok := clientsession.Current(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "no client")
		return
	}
	var in clickRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Store())
	defer cancel()

	res, err := h.Manager.Click(ctx, c.ID, chi.URLParam(r, "id"), in.Action)
	if err != nil {
		h.fail(w, "click", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type permissionResponse struct {
	Permission notify.Permission `json:"permission"`
	CanPrompt  bool              `json:"can_prompt"`
	Prompted   bool              `json:"prompted,omitempty"`
}

// ServePermission handles GET /offline/permission.
func (h *Handler) ServePermission(w http.ResponseWriter, r *http.Request) {
	c, _ := clientsession.Current(r)
	p := c.Permission
	if p == "" {
		p = notify.PermissionDefault
	}
	writeJSON(w, http.StatusOK, permissionResponse{Permission: p, CanPrompt: p.CanPrompt()})
}

type permissionRequest struct {
	Decision string `json:"decision"`
}

// decisionRevoke resets the permission to default, as when the user clears
// it in the browser settings.
const decisionRevoke = "revoke"

// ServeRequestPermission handles POST /offline/permission.
//
// {"decision":"granted"|"denied"|"default"} answers a prompt; only a
// browser at default is prompted. {"decision":"revoke"} resets to default.
func (h *Handler) ServeRequestPermission(w http.ResponseWriter, r *http.Request) {
	c, ok := clientsession.Current(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "no client")
		return
	}
	var in permissionRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	var next notify.Permission
	var prompted bool
	if in.Decision == decisionRevoke {
		next = notify.PermissionDefault
	} else {
		decision, err := notify.ParsePermission(in.Decision)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		next, prompted = c.Permission.Request(decision)
	}

	if err := h.Sessions.SetPermission(w, r, next); err != nil {
		h.Log.Error("failed to save notification permission", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save permission")
		return
	}
	if c.Returning {
		h.Manager.Notifier().Observe(c.ID, next)
	}
	writeJSON(w, http.StatusOK, permissionResponse{Permission: next, CanPrompt: next.CanPrompt(), Prompted: prompted})
}

type syncRequest struct {
	Tag string `json:"tag"`
}

// ServeSync handles POST /offline/sync.
func (h *Handler) ServeSync(w http.ResponseWriter, r *http.Request) {
	var in syncRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Fetch())
	defer cancel()

	if err := h.Manager.Sync(ctx, in.Tag); err != nil {
		h.fail(w, "sync", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeStatus handles GET /offline/status.
func (h *Handler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Store())
	defer cancel()

	st, err := h.Manager.Status(ctx)
	if err != nil {
		h.fail(w, "status", err)
		return
	}
	out := statusResponse{Status: st}
	if c, ok := clientsession.Current(r); ok {
		if cl, found := h.Manager.Client(c.ID); found {
			out.Client = &cl
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// statusResponse is the manager status plus the calling browser's page, if
// one is registered.
type statusResponse struct {
	cache.Status
	Client *cache.Client `json:"client,omitempty"`
}

// fail maps manager errors to HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, cache.ErrUnknownMessage),
		errors.Is(err, cache.ErrUnknownSyncTag),
		errors.Is(err, cache.ErrNoReplyPort):
		status = http.StatusBadRequest
	case errors.Is(err, cache.ErrForeignURL):
		status = http.StatusForbidden
	case errors.Is(err, cache.ErrUnknownNotification):
		status = http.StatusNotFound
	case errors.Is(err, cache.ErrNoActiveGeneration),
		errors.Is(err, cache.ErrStopped),
		errors.Is(err, cache.ErrInstallInProgress):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= 500 {
		h.Log.Warn("offline request failed", zap.String("op", op), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

// forwardHeaders keeps the request headers that matter upstream.
func forwardHeaders(in http.Header) http.Header {
	out := make(http.Header)
	for _, k := range []string{"Accept", "Accept-Language", "Cache-Control", "Content-Type"} {
		if v := in.Values(k); len(v) > 0 {
			out[k] = append([]string(nil), v...)
		}
	}
	return out
}

// hopHeaders are not copied from a stored or fetched response.
var hopHeaders = map[string]bool{
	"Connection":        true,
	"Content-Length":    true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
}

func writeResponse(w http.ResponseWriter, resp cache.Response, source string) {
	for k, vs := range resp.Header {
		if hopHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(SourceHeader, source)
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limits.MaxJSONBody))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
