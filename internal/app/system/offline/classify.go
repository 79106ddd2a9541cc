// internal/app/system/offline/classify.go
package offline

import (
	"net/url"
	"path"
	"strings"
)

// Class is the routing class of an intercepted request.
type Class string

const (
	ClassStatic Class = "static"
	ClassScript Class = "script"
	ClassImage  Class = "image"
	ClassAPI    Class = "api"
	ClassOther  Class = "other"
)

var (
	staticExts = map[string]bool{
		".css": true, ".html": true, ".htm": true, ".webmanifest": true,
		".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	}
	scriptExts = map[string]bool{".js": true, ".mjs": true}
	imageExts  = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
		".gif": true, ".svg": true, ".ico": true, ".avif": true,
	}
	fontHosts = map[string]bool{"fonts.googleapis.com": true, "fonts.gstatic.com": true}
)

// Classify maps a request to exactly one Class. It looks only at the URL and
// the destination hint, so the same request always gets the same class.
func Classify(req Request) Class {
	raw := strings.ToLower(req.URL)

	// Analytics beacons and API calls are never cache-first, even when
	// they end in .js.
	if strings.Contains(raw, "/api/") || strings.Contains(raw, "analytics") || strings.Contains(raw, "gtag") {
		return ClassAPI
	}

	switch strings.ToLower(req.Destination) {
	case "document", "style", "font", "manifest":
		return ClassStatic
	case "script", "worker", "sharedworker":
		return ClassScript
	case "image":
		return ClassImage
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ClassOther
	}
	p := u.Path
	ext := path.Ext(p)

	switch {
	case p == "" || p == "/" || strings.HasSuffix(p, "/manifest.json"):
		return ClassStatic
	case fontHosts[u.Hostname()], staticExts[ext]:
		return ClassStatic
	case scriptExts[ext], strings.Contains(p, ".js@"):
		return ClassScript
	case imageExts[ext]:
		return ClassImage
	}
	return ClassOther
}

// Strategy names a retrieval strategy.
type Strategy string

const (
	StrategyCacheFirst   Strategy = "cache-first"
	StrategyNetworkFirst Strategy = "network-first"
	StrategyImage        Strategy = "image"
)

// Route is the routing decision for one class.
type Route struct {
	Strategy  Strategy
	Partition string // partition class, see PartitionStatic etc.
}

// RouteFor returns the strategy and target partition class for c.
func RouteFor(c Class) Route {
	switch c {
	case ClassStatic:
		return Route{Strategy: StrategyCacheFirst, Partition: PartitionStatic}
	case ClassScript:
		return Route{Strategy: StrategyCacheFirst, Partition: PartitionDynamic}
	case ClassImage:
		return Route{Strategy: StrategyImage, Partition: PartitionImages}
	default:
		return Route{Strategy: StrategyNetworkFirst, Partition: PartitionDynamic}
	}
}
