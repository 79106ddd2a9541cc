// internal/app/system/offline/strategies.go
package offline

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Result is the outcome of routing one request.
type Result struct {
	Response    Response
	Source      string
	Class       Class
	Strategy    Strategy
	Intercepted bool
}

// serve routes an already resolved GET request through the strategy of its
// class. It always returns a response.
func (g *generation) serve(ctx context.Context, req Request) Result {
	class := Classify(req)
	route := RouteFor(class)

	var resp Response
	var source string
	switch route.Strategy {
	case StrategyCacheFirst:
		resp, source = g.cacheFirst(ctx, req, route.Partition)
	case StrategyImage:
		resp, source = g.imageFirst(ctx, req)
	default:
		resp, source = g.networkFirst(ctx, req)
	}

	g.metrics.Requests.WithLabelValues(string(class), string(route.Strategy), source).Inc()
	return Result{
		Response:    resp,
		Source:      source,
		Class:       class,
		Strategy:    route.Strategy,
		Intercepted: true,
	}
}

// cacheFirst answers from cache without touching the network; on a miss it
// fetches and stores a copy.
func (g *generation) cacheFirst(ctx context.Context, req Request, class string) (Response, string) {
	key := req.Key()
	if resp, ok := g.match(ctx, key, class); ok {
		return resp, SourceCache
	}

	resp, err := g.fetcher.Fetch(ctx, req)
	if err != nil {
		g.log.Info("cache-first: network failed",
			zap.String("url", req.URL), zap.Error(err))
		return g.offline(ctx, req)
	}
	if resp.Cacheable() {
		g.store(ctx, class, key, resp.Clone())
	}
	return resp, SourceNetwork
}

// networkFirst prefers a live response and falls back to any cached copy.
func (g *generation) networkFirst(ctx context.Context, req Request) (Response, string) {
	key := req.Key()
	resp, err := g.fetcher.Fetch(ctx, req)
	if err == nil {
		// Only same-origin successes are kept; cross-origin answers pass
		// through uncached.
		if resp.OK() && resp.Type == TypeBasic {
			g.store(ctx, PartitionDynamic, key, resp.Clone())
		}
		return resp, SourceNetwork
	}

	g.log.Info("network-first: network failed, trying cache",
		zap.String("url", req.URL), zap.Error(err))
	if cached, ok := g.match(ctx, key, PartitionDynamic); ok {
		return cached, SourceCache
	}
	return g.offline(ctx, req)
}

// imageFirst refreshes images from the network when it can and serves the
// last cached copy when it cannot.
func (g *generation) imageFirst(ctx context.Context, req Request) (Response, string) {
	key := req.Key()
	resp, err := g.fetcher.Fetch(ctx, req)
	switch {
	case err != nil:
		g.log.Info("image: network failed", zap.String("url", req.URL), zap.Error(err))
	case !resp.OK():
		g.log.Info("image: network returned error status",
			zap.String("url", req.URL), zap.Int("status", resp.Status))
	default:
		if resp.Cacheable() {
			g.store(ctx, PartitionImages, key, resp.Clone())
		}
		return resp, SourceNetwork
	}

	if cached, ok := g.match(ctx, key, PartitionImages); ok {
		return cached, SourceCache
	}
	return Synthetic(http.StatusNotFound, g.cfg.imageMissingText()), SourceSynthetic
}

// offline is the last resort when neither network nor the request's own
// cache entry can answer. Navigations get the cached app document.
func (g *generation) offline(ctx context.Context, req Request) (Response, string) {
	if req.Destination == "document" {
		if doc, err := g.cfg.Resolve(g.cfg.appDocument()); err == nil && doc != req.URL {
			if cached, ok := g.match(ctx, RequestKey{Method: http.MethodGet, URL: doc}, PartitionStatic); ok {
				return cached, SourceCache
			}
		}
	}
	return Synthetic(http.StatusServiceUnavailable, g.cfg.offlineText()), SourceSynthetic
}

// match looks in the preferred partition first, then in the other current
// partitions. Registry errors count as misses.
func (g *generation) match(ctx context.Context, key RequestKey, preferred string) (Response, bool) {
	order := []string{preferred}
	for _, c := range []string{PartitionStatic, PartitionDynamic, PartitionImages} {
		if c != preferred {
			order = append(order, c)
		}
	}
	for _, class := range order {
		p, ok := g.parts[class]
		if !ok {
			continue
		}
		resp, ok, err := p.Match(ctx, key)
		if err != nil {
			g.log.Warn("cache match failed",
				zap.String("partition", p.Name()), zap.String("url", key.URL), zap.Error(err))
			continue
		}
		if ok {
			return resp, true
		}
	}
	return Response{}, false
}

// store writes a copy the caller no longer uses. Failures are logged and
// counted; the request still gets its response.
func (g *generation) store(ctx context.Context, class string, key RequestKey, resp Response) {
	name := g.cfg.PartitionName(class)
	p, ok := g.parts[class]
	if !ok {
		g.log.Warn("cache write skipped; partition not open", zap.String("partition", name))
		return
	}
	err := p.Put(ctx, key, resp)
	if errors.Is(err, ErrPartitionDeleted) {
		// A newer generation activated while this request was in flight.
		g.log.Debug("cache write dropped; partition deleted",
			zap.String("partition", name), zap.String("url", key.URL))
		return
	}
	if err != nil {
		g.metrics.CacheWriteErrors.WithLabelValues(name).Inc()
		g.log.Warn("cache write failed",
			zap.String("partition", name), zap.String("url", key.URL), zap.Error(err))
	}
}
