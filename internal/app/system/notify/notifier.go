// internal/app/system/notify/notifier.go
package notify

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/guiafarma/internal/app/system/htmlsanitize"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Notification defaults.
const (
	DefaultTitle = "Guia Farmacêutico"
	DefaultBody  = "Nova atualização disponível!"
	DefaultIcon  = "/favicon.ico"

	ActionExplore = "explore"
	ActionClose   = "close"

	// defaultOutboxSize bounds the open notifications kept per client.
	defaultOutboxSize = 50

	// DefaultTTL is how long a client's permission and open notifications
	// are kept after it was last observed.
	DefaultTTL = 24 * time.Hour
)

// ErrNotFound is returned when a notification id is unknown for the client.
var ErrNotFound = errors.New("notification not found")

// Action is a button on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Data is the payload attached to a notification.
type Data struct {
	DateOfArrival time.Time `json:"dateOfArrival"`
	PrimaryKey    int       `json:"primaryKey"`
}

// Notification is one displayed notification.
type Notification struct {
	ID       string   `json:"id"`
	ClientID string   `json:"client_id"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Icon     string   `json:"icon"`
	Badge    string   `json:"badge"`
	Vibrate  []int    `json:"vibrate"`
	Actions  []Action `json:"actions"`
	Data     Data     `json:"data"`
}

// Notifier tracks each client's observed permission and the notifications
// currently shown to it.
type Notifier struct {
	mu      sync.Mutex
	perms   *gocache.Cache // client id -> Permission; expiry drops the outbox too
	outbox  map[string][]Notification
	maxOpen int
	now     func() time.Time
	log     *zap.Logger
}

// New creates a Notifier that forgets clients after DefaultTTL.
func New(logger *zap.Logger) *Notifier {
	return NewWithTTL(logger, DefaultTTL)
}

// NewWithTTL creates a Notifier that forgets a client not observed for ttl.
func NewWithTTL(logger *zap.Logger, ttl time.Duration) *Notifier {
	n := &Notifier{
		perms:   gocache.New(ttl, ttl/2),
		outbox:  make(map[string][]Notification),
		maxOpen: defaultOutboxSize,
		now:     time.Now,
		log:     logger,
	}
	// Runs from the janitor without the cache lock held.
	n.perms.OnEvicted(func(clientID string, _ interface{}) {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.outbox, clientID)
	})
	return n
}

// permission reads a client's observed permission. Callers hold n.mu.
func (n *Notifier) permission(clientID string) Permission {
	if v, ok := n.perms.Get(clientID); ok {
		return v.(Permission)
	}
	return PermissionDefault
}

// Observe records the permission a client reported. Revocations become
// visible here and nowhere else.
func (n *Notifier) Observe(clientID string, p Permission) {
	if clientID == "" {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.perms.SetDefault(clientID, p)
	if !p.Granted() {
		delete(n.outbox, clientID)
	}
}

// Permission returns the last observed permission for a client.
func (n *Notifier) Permission(clientID string) Permission {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.permission(clientID)
}

// FromPayload builds the notification shown for a push payload. An empty
// payload gets DefaultBody.
func FromPayload(payload []byte, now time.Time) Notification {
	body := htmlsanitize.PlainText(string(payload))
	if body == "" {
		body = DefaultBody
	}
	return Notification{
		Title:   DefaultTitle,
		Body:    body,
		Icon:    DefaultIcon,
		Badge:   DefaultIcon,
		Vibrate: []int{100, 50, 100},
		Actions: []Action{
			{Action: ActionExplore, Title: "Ver agora", Icon: DefaultIcon},
			{Action: ActionClose, Title: "Fechar", Icon: DefaultIcon},
		},
		Data: Data{DateOfArrival: now.UTC(), PrimaryKey: 1},
	}
}

// Push shows the payload to every client whose permission is granted and
// returns what was shown. Clients without permission are skipped quietly.
func (n *Notifier) Push(payload []byte) []Notification {
	tmpl := FromPayload(payload, n.now())

	n.mu.Lock()
	defer n.mu.Unlock()

	items := n.perms.Items()
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var shown []Notification
	for _, clientID := range ids {
		p := items[clientID].Object.(Permission)
		if !p.Granted() {
			n.log.Debug("notification suppressed; permission not granted",
				zap.String("client_id", clientID),
				zap.String("permission", string(p)))
			continue
		}
		shown = append(shown, n.showLocked(clientID, tmpl))
	}
	return shown
}

// Show displays a notification to one client. It is a logged no-op when the
// client's permission is not granted.
func (n *Notifier) Show(clientID string, note Notification) (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.permission(clientID).Granted() {
		n.log.Info("notification not shown; permission not granted",
			zap.String("client_id", clientID))
		return Notification{}, false
	}
	return n.showLocked(clientID, note), true
}

func (n *Notifier) showLocked(clientID string, tmpl Notification) Notification {
	note := tmpl
	note.ID = uuid.NewString()
	note.ClientID = clientID
	note.Vibrate = append([]int(nil), tmpl.Vibrate...)
	note.Actions = append([]Action(nil), tmpl.Actions...)

	box := append(n.outbox[clientID], note)
	if len(box) > n.maxOpen {
		box = box[len(box)-n.maxOpen:]
	}
	n.outbox[clientID] = box
	return note
}

// Open lists the client's open notifications, oldest first.
func (n *Notifier) Open(clientID string) []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.outbox[clientID]...)
}

// Close dismisses a notification and returns it.
func (n *Notifier) Close(clientID, id string) (Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	box := n.outbox[clientID]
	for i, note := range box {
		if note.ID == id {
			n.outbox[clientID] = append(box[:i:i], box[i+1:]...)
			return note, nil
		}
	}
	return Notification{}, ErrNotFound
}
