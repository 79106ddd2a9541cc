package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dalemusser/guiafarma/internal/app/system/offline"
	"github.com/dalemusser/guiafarma/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Handler holds dependencies needed for health checks.
type Handler struct {
	Client  *mongo.Client // nil when the cache lives in memory
	Offline *offline.Manager
	Log     *zap.Logger
}

// NewHandler constructs a health Handler with the Mongo client, the offline
// cache manager and logger.
func NewHandler(client *mongo.Client, mgr *offline.Manager, logger *zap.Logger) *Handler {
	return &Handler{
		Client:  client,
		Offline: mgr,
		Log:     logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status   string       `json:"status"`
	Database string       `json:"database"`
	Message  string       `json:"message,omitempty"`
	Error    string       `json:"error,omitempty"`
	Cache    *cacheStatus `json:"cache,omitempty"`
}

// cacheStatus is a simplified lifecycle status for the health endpoint.
type cacheStatus struct {
	State   offline.State `json:"state,omitempty"`
	Version string        `json:"version,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "cache":{"state":"activated","version":"v2"} }
//
// With the in-memory cache the database is reported as "not_configured".
//
// On DB failure: 503 and
//
//	{ "status":"error", "message":"Database unavailable", "error":"…"}
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:   "ok",
		Database: "not_configured",
	}

	// Check database
	if h.Client != nil {
		if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
			h.Log.Error("health-check: mongo ping failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			resp.Status = "error"
			resp.Database = "disconnected"
			resp.Message = "Database unavailable"
			resp.Error = err.Error()
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
		resp.Database = "connected"
	}

	// Cache lifecycle (informational only; an inactive cache is still healthy)
	if h.Offline != nil {
		if st, err := h.Offline.Status(ctx); err == nil {
			resp.Cache = &cacheStatus{State: st.State, Version: st.ActiveVersion}
		} else {
			h.Log.Warn("health-check: offline status failed", zap.Error(err))
		}
	}

	_ = json.NewEncoder(w).Encode(resp)
}
