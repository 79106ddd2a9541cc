// internal/app/system/offline/clients.go
package offline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// Client is an open page (window or tab) of the site.
type Client struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Controller string    `json:"controller,omitempty"` // version of the generation controlling it
	Focused    bool      `json:"focused"`
	SeenAt     time.Time `json:"seen_at"`
}

// DefaultClientTTL is how long a page stays known without being seen.
const DefaultClientTTL = 24 * time.Hour

// Clients tracks open pages so activation can claim them and notification
// clicks can focus or open one. Pages not seen for the TTL are forgotten.
type Clients struct {
	mu   sync.Mutex
	byID *gocache.Cache // id -> *Client
	now  func() time.Time
}

// NewClients creates an empty client set with DefaultClientTTL.
func NewClients() *Clients {
	return NewClientsWithTTL(DefaultClientTTL)
}

// NewClientsWithTTL creates an empty client set whose entries expire after
// ttl without a Register or focus.
func NewClientsWithTTL(ttl time.Duration) *Clients {
	return &Clients{byID: gocache.New(ttl, ttl/2), now: time.Now}
}

// Register records that a page is open. A page that loads while a
// generation is active is controlled by it from the start.
func (c *Clients) Register(id, url, controller string) Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	var cl *Client
	if v, ok := c.byID.Get(id); ok {
		cl = v.(*Client)
	} else {
		cl = &Client{ID: id, Controller: controller}
	}
	cl.URL = url
	cl.SeenAt = c.now()
	c.byID.SetDefault(id, cl)
	return *cl
}

// Get returns a client by id.
func (c *Clients) Get(id string) (Client, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.byID.Get(id)
	if !ok {
		return Client{}, false
	}
	return *v.(*Client), true
}

// Len returns the number of known clients.
func (c *Clients) Len() int {
	return len(c.byID.Items())
}

// sorted returns the live clients ordered by id. Callers hold c.mu.
func (c *Clients) sorted() []*Client {
	items := c.byID.Items()
	out := make([]*Client, 0, len(items))
	for _, it := range items {
		out = append(out, it.Object.(*Client))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Claim makes version the controller of every open client and returns how
// many changed hands.
func (c *Clients) Claim(version string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cl := range c.sorted() {
		if cl.Controller != version {
			cl.Controller = version
			n++
		}
	}
	return n
}

// FocusOrOpen focuses the first client showing url, or opens a new one
// controlled by controller. opened reports which happened.
func (c *Clients) FocusOrOpen(url, controller string) (cl Client, opened bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var target *Client
	all := c.sorted()
	for _, p := range all {
		if p.URL == url {
			target = p
			break
		}
	}
	if target == nil {
		target = &Client{ID: uuid.NewString(), URL: url, Controller: controller}
		all = append(all, target)
		opened = true
	}
	for _, other := range all {
		other.Focused = false
	}
	target.Focused = true
	target.SeenAt = c.now()
	c.byID.SetDefault(target.ID, target)
	return *target, opened
}
