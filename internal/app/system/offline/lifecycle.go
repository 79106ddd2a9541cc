// internal/app/system/offline/lifecycle.go
package offline

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dalemusser/guiafarma/internal/app/system/timeouts"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle state of one cache generation.
type State string

const (
	StateInstalling State = "installing"
	StateInstalled  State = "installed" // waiting to activate
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

// installConcurrency bounds parallel manifest fetches per partition.
const installConcurrency = 6

// generation is one versioned set of partitions plus the strategies that
// serve from it. cfg, registry, fetcher and parts are read-only once
// install has returned, so fetches may use a generation concurrently.
type generation struct {
	cfg      Config
	registry Registry
	fetcher  Fetcher
	log      *zap.Logger
	metrics  *Metrics

	parts map[string]Partition // keyed by partition class
	hosts map[string]bool      // origins requests may reach

	// state is owned by the manager loop.
	state State
}

func newGeneration(cfg Config, registry Registry, fetcher Fetcher, logger *zap.Logger, metrics *Metrics) *generation {
	return &generation{
		cfg:      cfg,
		registry: registry,
		fetcher:  fetcher,
		log:      logger.With(zap.String("cache_version", cfg.Version)),
		metrics:  metrics,
		parts:    make(map[string]Partition),
		hosts:    cfg.Hosts(),
		state:    StateInstalling,
	}
}

// install populates the three partitions. Each partition is all-or-nothing:
// every manifest URL is fetched before anything is written, and one failed
// or non-2xx fetch fails the partition. If any partition fails, partitions
// this attempt created are deleted again so no half-filled generation is
// left behind.
func (g *generation) install(ctx context.Context) error {
	before, err := g.registry.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list partitions: %w", err)
	}
	existed := make(map[string]bool, len(before))
	for _, name := range before {
		existed[name] = true
	}

	classes := []string{PartitionStatic, PartitionDynamic, PartitionImages}
	opened := make([]Partition, len(classes))

	eg, egctx := errgroup.WithContext(ctx)
	for i, class := range classes {
		eg.Go(func() error {
			p, err := g.populate(egctx, class)
			if err != nil {
				return err
			}
			opened[i] = p
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		g.discard(existed)
		return err
	}

	for i, class := range classes {
		g.parts[class] = opened[i]
	}
	return nil
}

// populate fetches one partition's manifest and bulk-inserts it.
func (g *generation) populate(ctx context.Context, class string) (Partition, error) {
	name := g.cfg.PartitionName(class)
	manifest := g.cfg.manifestFor(class)

	entries := make([]Entry, len(manifest))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(installConcurrency)
	for i, raw := range manifest {
		eg.Go(func() error {
			u, err := g.cfg.Resolve(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			req := Request{Method: http.MethodGet, URL: u}
			resp, err := g.fetcher.Fetch(egctx, req)
			if err != nil {
				return fmt.Errorf("%s: fetch %s: %w", name, u, err)
			}
			if !resp.OK() {
				return fmt.Errorf("%s: fetch %s: status %d", name, u, resp.Status)
			}
			entries[i] = Entry{Key: req.Key(), Response: resp}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	p, err := g.registry.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := p.PutAll(ctx, entries); err != nil {
		return nil, fmt.Errorf("populate %s: %w", name, err)
	}
	g.log.Info("partition populated", zap.String("partition", name), zap.Int("entries", len(entries)))
	return p, nil
}

// discard deletes this generation's partitions that did not exist before
// the install attempt.
func (g *generation) discard(existed map[string]bool) {
	// The install context may already be cancelled; cleanup gets its own.
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Activate())
	defer cancel()
	for _, name := range g.cfg.PartitionNames() {
		if existed[name] {
			continue
		}
		if _, err := g.registry.Delete(ctx, name); err != nil {
			g.log.Error("failed to discard partition after install failure",
				zap.String("partition", name), zap.Error(err))
		}
	}
}

// activate deletes every partition that is not part of this generation and
// then claims all open clients. It returns the deleted partition names.
func (g *generation) activate(ctx context.Context, clients *Clients) ([]string, error) {
	names, err := g.registry.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	current := make(map[string]bool, 3)
	for _, name := range g.cfg.PartitionNames() {
		current[name] = true
	}

	var deleted []string
	for _, name := range names {
		if current[name] {
			continue
		}
		if _, err := g.registry.Delete(ctx, name); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", name, err)
		}
		g.metrics.PartitionsDeleted.Inc()
		g.log.Info("deleted stale partition", zap.String("partition", name))
		deleted = append(deleted, name)
	}

	claimed := clients.Claim(g.cfg.Version)
	g.log.Info("generation activated", zap.Int("claimed_clients", claimed))
	return deleted, nil
}
