// internal/app/features/offline/routes.go
package offline

import "github.com/go-chi/chi/v5"

// Routes returns a subrouter that serves the offline endpoints.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(h.Sessions.Load)
	r.Use(h.observePermission)

	r.HandleFunc("/fetch", h.ServeFetch) // mounted under /offline
	r.Post("/message", h.ServeMessage)
	r.With(h.PushLimit.Middleware(h.Log)).Post("/push", h.ServePush)
	r.Get("/notifications", h.ServeNotifications)
	r.Post("/notifications/{id}/click", h.ServeClick)
	r.Get("/permission", h.ServePermission)
	r.Post("/permission", h.ServeRequestPermission)
	r.Post("/sync", h.ServeSync)
	r.Get("/status", h.ServeStatus)
	return r
}
