// internal/app/system/offline/manager.go
package offline

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/dalemusser/guiafarma/internal/app/system/notify"
	"github.com/dalemusser/guiafarma/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Options holds the Manager's collaborators.
type Options struct {
	Registry Registry
	Fetcher  Fetcher
	Notifier *notify.Notifier
	Clients  *Clients
	Logger   *zap.Logger
	Metrics  *Metrics

	// Origin resolves relative URLs of requests that arrive before any
	// generation is active.
	Origin string
}

// Manager is the offline cache manager. A single goroutine (started by
// Start) owns the lifecycle state; every public method hands it an event
// and waits for the answer. Strategies run on the caller's goroutine
// against a snapshot of the active generation, so concurrent fetches do
// not wait on each other.
type Manager struct {
	registry Registry
	fetcher  Fetcher
	notifier *notify.Notifier
	clients  *Clients
	log      *zap.Logger
	metrics  *Metrics
	origin   string

	events   chan func()
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Owned by the loop goroutine.
	active     *generation
	waiting    *generation
	installing *generation
}

// NewManager creates a Manager. Call Start before using it.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.New(logger)
	}
	clients := opts.Clients
	if clients == nil {
		clients = NewClients()
	}
	return &Manager{
		registry: opts.Registry,
		fetcher:  opts.Fetcher,
		notifier: notifier,
		clients:  clients,
		log:      logger,
		metrics:  metrics,
		origin:   opts.Origin,
		events:   make(chan func()),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the dispatch loop.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.run()
	m.log.Info("offline cache manager started")
}

// Stop ends the dispatch loop and waits for it to exit. Calls made after
// Stop return ErrStopped.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	m.log.Info("offline cache manager stopped")
}

func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case fn := <-m.events:
			fn()
		}
	}
}

// do runs fn on the loop goroutine and waits for it to finish.
func (m *Manager) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	ev := func() {
		defer close(done)
		fn()
	}
	select {
	case m.events <- ev:
	case <-m.stopCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notifier returns the notification bridge.
func (m *Manager) Notifier() *notify.Notifier { return m.notifier }

// Install installs cfg as a new generation. It blocks until every manifest
// has been cached (or one failed). When cfg.SkipWaiting is set, the
// generation is activated before Install returns. The returned state is the
// new generation's state; on failure it is StateRedundant and the previous
// generation keeps serving.
func (m *Manager) Install(ctx context.Context, cfg Config) (State, error) {
	if err := cfg.Validate(); err != nil {
		return StateRedundant, fmt.Errorf("invalid cache config: %w", err)
	}
	gen := newGeneration(cfg, m.registry, m.fetcher, m.log, m.metrics)

	busy := false
	if err := m.do(ctx, func() {
		if m.installing != nil {
			busy = true
			return
		}
		m.installing = gen
	}); err != nil {
		return StateRedundant, err
	}
	if busy {
		return StateRedundant, ErrInstallInProgress
	}

	gen.log.Info("installing cache generation", zap.Strings("partitions", cfg.PartitionNames()))
	installErr := gen.install(ctx)

	// Finish on a fresh context so a cancelled install still clears the
	// installing slot.
	fctx, cancel := context.WithTimeout(context.Background(), timeouts.Activate())
	defer cancel()

	var state State
	var activateErr error
	if err := m.do(fctx, func() {
		m.installing = nil
		if installErr != nil {
			gen.state = StateRedundant
			state = StateRedundant
			m.metrics.Installs.WithLabelValues("failed").Inc()
			return
		}
		m.metrics.Installs.WithLabelValues("ok").Inc()
		gen.state = StateInstalled
		if m.waiting != nil {
			m.waiting.state = StateRedundant
		}
		m.waiting = gen
		if cfg.SkipWaiting {
			activateErr = m.activateWaiting(fctx)
		}
		state = gen.state
	}); err != nil {
		return StateRedundant, err
	}

	if installErr != nil {
		gen.log.Error("install failed; previous generation keeps serving", zap.Error(installErr))
		return state, fmt.Errorf("install %s: %w", cfg.Version, installErr)
	}
	if activateErr != nil {
		return state, fmt.Errorf("activate %s: %w", cfg.Version, activateErr)
	}
	return state, nil
}

// activateWaiting promotes the waiting generation. Runs on the loop, so no
// fetch sees the new generation until cleanup and claim are done.
func (m *Manager) activateWaiting(ctx context.Context) error {
	gen := m.waiting
	if gen == nil {
		return nil
	}
	gen.state = StateActivating
	if _, err := gen.activate(ctx, m.clients); err != nil {
		gen.state = StateInstalled
		gen.log.Error("activation failed; generation stays waiting", zap.Error(err))
		return err
	}
	m.waiting = nil
	if m.active != nil && m.active != gen {
		m.active.state = StateRedundant
	}
	gen.state = StateActivated
	m.active = gen
	return nil
}

// Fetch routes a page request. Requests that are not intercepted (non-GET,
// or no active generation) come back with Intercepted == false and must be
// sent to the network untouched, for example with Passthrough. URLs outside
// the site origin and the manifest hosts fail with ErrForeignURL and are
// neither fetched nor cached.
func (m *Manager) Fetch(ctx context.Context, req Request) (Result, error) {
	var gen *generation
	if err := m.do(ctx, func() { gen = m.active }); err != nil {
		return Result{}, err
	}
	if gen == nil {
		return Result{Intercepted: false, Source: SourcePassthrough}, nil
	}

	u, err := gen.cfg.Resolve(req.URL)
	if err != nil {
		return Result{}, err
	}
	if !gen.hosts[originOf(u)] {
		return Result{}, fmt.Errorf("%w: %s", ErrForeignURL, u)
	}
	if !req.IsGet() {
		return Result{Intercepted: false, Source: SourcePassthrough}, nil
	}
	req.URL = u
	req.Method = http.MethodGet
	return gen.serve(ctx, req), nil
}

// Passthrough sends a request to the network without reading or writing any
// partition. Before a generation is active only the configured origin is
// reachable.
func (m *Manager) Passthrough(ctx context.Context, req Request) (Response, error) {
	var gen *generation
	if err := m.do(ctx, func() { gen = m.active }); err != nil {
		return Response{}, err
	}
	cfg := Config{Origin: m.origin}
	hosts := cfg.Hosts()
	if gen != nil {
		cfg, hosts = gen.cfg, gen.hosts
	}

	u, err := cfg.Resolve(req.URL)
	if err != nil {
		return Response{}, err
	}
	if !hosts[originOf(u)] {
		return Response{}, fmt.Errorf("%w: %s", ErrForeignURL, u)
	}
	req.URL = u
	return m.fetcher.Fetch(ctx, req)
}

// PostMessage handles a control message from a page.
func (m *Manager) PostMessage(ctx context.Context, msg Message) error {
	var msgErr error
	if err := m.do(ctx, func() {
		switch msg.Type {
		case MessageSkipWaiting:
			msgErr = m.activateWaiting(ctx)
		case MessageGetVersion:
			if msg.Port == nil {
				msgErr = ErrNoReplyPort
				return
			}
			if m.active == nil {
				msgErr = ErrNoActiveGeneration
				return
			}
			select {
			case msg.Port <- Reply{Version: m.active.cfg.Version}:
			default:
				m.log.Warn("GET_VERSION reply dropped; port is full")
			}
		default:
			msgErr = fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
		}
	}); err != nil {
		return err
	}
	return msgErr
}

// RegisterClient records an open page.
func (m *Manager) RegisterClient(ctx context.Context, id, url string) (Client, error) {
	var cl Client
	err := m.do(ctx, func() {
		controller := ""
		if m.active != nil {
			controller = m.active.cfg.Version
		}
		cl = m.clients.Register(id, url, controller)
	})
	return cl, err
}

// Client returns the page registered under id.
func (m *Manager) Client(id string) (Client, bool) {
	return m.clients.Get(id)
}

// Push displays a push payload to every client with granted permission.
func (m *Manager) Push(ctx context.Context, payload []byte) ([]notify.Notification, error) {
	var shown []notify.Notification
	err := m.do(ctx, func() {
		shown = m.notifier.Push(payload)
		m.log.Info("push received", zap.Int("delivered", len(shown)))
	})
	return shown, err
}

// ClickResult describes what a notification click did.
type ClickResult struct {
	Notification notify.Notification `json:"notification"`
	Action       string              `json:"action"`
	Client       *Client             `json:"client,omitempty"`
	Opened       bool                `json:"opened"`
}

// Click closes a notification and, for the explore action, focuses or opens
// the app root. Any other action only closes it.
func (m *Manager) Click(ctx context.Context, clientID, notificationID, action string) (ClickResult, error) {
	var res ClickResult
	var clickErr error
	err := m.do(ctx, func() {
		note, err := m.notifier.Close(clientID, notificationID)
		if err != nil {
			clickErr = fmt.Errorf("%w: %s", ErrUnknownNotification, notificationID)
			return
		}
		res = ClickResult{Notification: note, Action: action}
		if action != notify.ActionExplore {
			return
		}

		origin := m.origin
		controller := ""
		if m.active != nil {
			origin = m.active.cfg.Origin
			controller = m.active.cfg.Version
		}
		root, err := Config{Origin: origin}.Resolve("/")
		if err != nil {
			clickErr = err
			return
		}
		cl, opened := m.clients.FocusOrOpen(root, controller)
		res.Client = &cl
		res.Opened = opened
	})
	if err != nil {
		return ClickResult{}, err
	}
	return res, clickErr
}

// Sync runs a background sync. The only tag is SyncTagBackground, which
// revalidates the app document against the network and refreshes its
// cached copy.
func (m *Manager) Sync(ctx context.Context, tag string) error {
	if tag != SyncTagBackground {
		return fmt.Errorf("%w: %q", ErrUnknownSyncTag, tag)
	}
	var gen *generation
	if err := m.do(ctx, func() { gen = m.active }); err != nil {
		return err
	}
	if gen == nil {
		return ErrNoActiveGeneration
	}

	u, err := gen.cfg.Resolve(gen.cfg.appDocument())
	if err != nil {
		return err
	}
	h := make(http.Header)
	h.Set("Cache-Control", "no-cache")
	req := Request{Method: http.MethodGet, URL: u, Destination: "document", Header: h}
	resp, err := m.fetcher.Fetch(ctx, req)
	if err != nil {
		return fmt.Errorf("background sync: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("background sync: %s returned %d", u, resp.Status)
	}
	gen.store(ctx, PartitionStatic, req.Key(), resp)
	gen.log.Info("background sync completed", zap.String("url", u))
	return nil
}

// PartitionStatus is one partition in a Status.
type PartitionStatus struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
}

// Status is a snapshot of the manager.
type Status struct {
	State             State             `json:"state"`
	ActiveVersion     string            `json:"active_version,omitempty"`
	WaitingVersion    string            `json:"waiting_version,omitempty"`
	InstallingVersion string            `json:"installing_version,omitempty"`
	Partitions        []PartitionStatus `json:"partitions"`
	Clients           int               `json:"clients"`
}

// Status reports lifecycle state and partition sizes.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	var st Status
	if err := m.do(ctx, func() {
		switch {
		case m.active != nil:
			st.State = m.active.state
			st.ActiveVersion = m.active.cfg.Version
		case m.waiting != nil:
			st.State = m.waiting.state
		case m.installing != nil:
			st.State = StateInstalling
		}
		if m.waiting != nil {
			st.WaitingVersion = m.waiting.cfg.Version
		}
		if m.installing != nil {
			st.InstallingVersion = m.installing.cfg.Version
		}
	}); err != nil {
		return Status{}, err
	}

	names, err := m.registry.Keys(ctx)
	if err != nil {
		return st, fmt.Errorf("list partitions: %w", err)
	}
	st.Partitions = make([]PartitionStatus, 0, len(names))
	for _, name := range names {
		p, err := m.registry.Open(ctx, name)
		if err != nil {
			return st, fmt.Errorf("open %s: %w", name, err)
		}
		n, err := p.Len(ctx)
		if err != nil {
			return st, fmt.Errorf("count %s: %w", name, err)
		}
		st.Partitions = append(st.Partitions, PartitionStatus{Name: name, Entries: n})
	}
	st.Clients = m.clients.Len()
	return st, nil
}
