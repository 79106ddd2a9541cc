// internal/app/system/clientsession/clientsession.go
package clientsession

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dalemusser/guiafarma/internal/app/system/notify"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"
)

// DefaultName is the cookie name used when none is configured.
const DefaultName = "guiafarma-client"

const (
	clientIDKey   = "client_id"
	permissionKey = "notification_permission"
)

// Client identifies one browser. Pages of the same browser share it.
//
// Returning is false on first contact, when the id was just issued and the
// browser has not yet sent the cookie back.
type Client struct {
	ID         string
	Permission notify.Permission
	Returning  bool
}

type ctxKey string

const currentClientKey ctxKey = "currentClient"

// Current returns the client loaded by Manager.Load.
func Current(r *http.Request) (Client, bool) {
	c, ok := r.Context().Value(currentClientKey).(Client)
	return c, ok
}

// WithClient puts a client in the request context. Handler tests use it to
// skip the cookie round trip.
func WithClient(r *http.Request, c Client) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentClientKey, c))
}

// Manager issues and reads the client cookie.
type Manager struct {
	store *sessions.CookieStore
	name  string
	log   *zap.Logger
}

// deriveKeys expands the configured secret into an HMAC key and an AES-256
// key so the cookie is both signed and encrypted.
func deriveKeys(secret []byte) (hashKey, blockKey []byte, err error) {
	r := hkdf.New(sha256.New, secret, nil, []byte("guiafarma client cookie"))
	hashKey = make([]byte, 64)
	blockKey = make([]byte, 32)
	if _, err := io.ReadFull(r, hashKey); err != nil {
		return nil, nil, fmt.Errorf("derive cookie hash key: %w", err)
	}
	if _, err := io.ReadFull(r, blockKey); err != nil {
		return nil, nil, fmt.Errorf("derive cookie block key: %w", err)
	}
	return hashKey, blockKey, nil
}

// New builds a Manager. The `secure` flag controls whether cookies are
// marked Secure and which SameSite mode is used. An empty key gets a random
// one, which means cookies do not survive a restart.
func New(sessionKey, name, domain string, secure bool, logger *zap.Logger) (*Manager, error) {
	key := []byte(sessionKey)
	switch {
	case len(key) == 0:
		key = securecookie.GenerateRandomKey(32)
		if key == nil {
			return nil, fmt.Errorf("generate session key: no randomness available")
		}
		logger.Warn("session key is empty; using a random key, client ids reset on restart")
	case len(key) < 32:
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(key)))
	}
	if name == "" {
		name = DefaultName
	}

	hashKey, blockKey, err := deriveKeys(key)
	if err != nil {
		return nil, err
	}
	store := sessions.NewCookieStore(hashKey, blockKey)
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   86400 * 365,
		Secure:   secure,
		HttpOnly: true,
	}
	if secure {
		opts.SameSite = http.SameSiteNoneMode
	} else {
		opts.SameSite = http.SameSiteLaxMode
	}
	store.Options = opts

	logger.Info("client session store initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &Manager{store: store, name: name, log: logger}, nil
}

// Load makes sure every request carries a client id, issuing one on first
// contact, and injects the Client into the request context.
func (m *Manager) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.store.Get(r, m.name)
		if err != nil {
			var scErr securecookie.Error
			if errors.As(err, &scErr) && scErr.IsDecode() {
				// Old key or tampered cookie; start over with a fresh id.
				m.log.Debug("client cookie rejected; issuing a new one", zap.Error(err))
			} else {
				m.log.Warn("client session read failed", zap.Error(err))
			}
		}

		id := getString(sess, clientIDKey)
		returning := id != ""
		if id == "" {
			id = uuid.NewString()
			sess.Values[clientIDKey] = id
			if err := sess.Save(r, w); err != nil {
				m.log.Error("failed to save client session", zap.Error(err))
			}
		}

		perm, err := notify.ParsePermission(getString(sess, permissionKey))
		if err != nil {
			perm = notify.PermissionDefault
		}
		next.ServeHTTP(w, WithClient(r, Client{ID: id, Permission: perm, Returning: returning}))
	})
}

// SetPermission stores the notification permission the browser reported.
func (m *Manager) SetPermission(w http.ResponseWriter, r *http.Request, p notify.Permission) error {
	sess, _ := m.store.Get(r, m.name)
	if c, ok := Current(r); ok && getString(sess, clientIDKey) == "" {
		sess.Values[clientIDKey] = c.ID
	}
	sess.Values[permissionKey] = string(p)
	return sess.Save(r, w)
}

// getString safely extracts a string from a session value.
func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}
