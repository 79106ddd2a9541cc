// internal/app/system/offline/config.go
package offline

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Partition classes. A partition name is "<prefix>-<class>-<version>".
const (
	PartitionStatic  = "static"
	PartitionDynamic = "dynamic"
	PartitionImages  = "images"
)

const (
	DefaultPrefix           = "farma"
	DefaultVersion          = "v2"
	DefaultMaxEntryBytes    = 10 << 20
	DefaultOfflineText      = "Offline content not available"
	DefaultImageMissingText = "Image not available"
	DefaultAppDocument      = "/index.html"
)

// Manifests lists the URLs pre-populated into each partition at install.
// Relative entries are resolved against Config.Origin.
type Manifests struct {
	Static  []string `json:"static"`
	Scripts []string `json:"scripts"`
	Images  []string `json:"images"`
}

// LoadManifests reads manifests from a JSON file of the form
// {"static":[...],"scripts":[...],"images":[...]}.
func LoadManifests(path string) (Manifests, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifests{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifests
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifests{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}

// Config describes one cache generation. It is built once at startup and
// handed to the Manager; nothing in this package keeps it in globals.
type Config struct {
	Prefix  string
	Version string

	// Origin is the absolute base URL of the site, e.g. http://localhost:3000/.
	Origin string

	Manifests Manifests

	// SkipWaiting activates a freshly installed generation immediately
	// instead of waiting for a SKIP_WAITING message.
	SkipWaiting bool

	// MaxEntryBytes caps the body size read from the network.
	MaxEntryBytes int64

	OfflineText      string
	ImageMissingText string

	// AppDocument is the page served for failed navigations and refreshed
	// by background sync.
	AppDocument string

	// ExtraHosts are origins ("https://host[:port]") the gateway may reach
	// besides Origin and the hosts named in the manifests.
	ExtraHosts []string
}

// DefaultExtraHosts are reached by the pages without appearing in a
// manifest: font files referenced from the Google Fonts stylesheet, and
// analytics.
var DefaultExtraHosts = []string{
	"https://fonts.gstatic.com",
	"https://www.google-analytics.com",
	"https://www.googletagmanager.com",
}

// DefaultConfig returns a Config populated with the site's manifests.
func DefaultConfig(origin string) Config {
	return Config{
		Prefix:           DefaultPrefix,
		Version:          DefaultVersion,
		Origin:           origin,
		Manifests:        DefaultManifests(),
		SkipWaiting:      true,
		MaxEntryBytes:    DefaultMaxEntryBytes,
		OfflineText:      DefaultOfflineText,
		ImageMissingText: DefaultImageMissingText,
		AppDocument:      DefaultAppDocument,
		ExtraHosts:       append([]string(nil), DefaultExtraHosts...),
	}
}

// DefaultManifests is the asset list of the Guia Farmacêutico site.
// The /js/ scripts are the search, chatbot, gamification, favorites,
// video, dashboard, i18n and notification widgets; they must stay
// available offline.
func DefaultManifests() Manifests {
	return Manifests{
		Static: []string{
			"/",
			"/index.html",
			"/manifest.json",
			"/responsive.css",
			"https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css",
			"https://cdnjs.cloudflare.com/ajax/libs/font-awesome/6.5.1/css/all.min.css",
			"https://unpkg.com/aos@2.3.1/dist/aos.css",
			"https://cdn.jsdelivr.net/npm/glightbox/dist/css/glightbox.min.css",
			"https://fonts.googleapis.com/css2?family=Roboto:wght@300;400;500;700&family=Montserrat:wght@400;500;600;700;800&display=swap",
		},
		Scripts: []string{
			"https://code.jquery.com/jquery-3.7.1.min.js",
			"https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/js/bootstrap.bundle.min.js",
			"https://unpkg.com/aos@2.3.1/dist/aos.js",
			"https://cdn.jsdelivr.net/npm/typed.js@2.0.12",
			"https://cdn.jsdelivr.net/npm/glightbox/dist/js/glightbox.min.js",
			"/responsive.js",
			"/js/i18n.js",
			"/js/notifications.js",
			"/js/gamification.js",
			"/js/favorites.js",
			"/js/advanced-search.js",
			"/js/ai-chatbot.js",
			"/js/video-system.js",
			"/js/dashboard.js",
		},
		Images: []string{
			"lab-student-beaker-book.jpg",
			"lab-pipetting-multi-channel.jpg",
			"target-arrow.jpg",
			"lab-robot-arm-flask.jpg",
			"lab-balance-capsules.jpg",
			"lab-tablet-hardness-tester-closeup.jpg",
			"lab-friability-tester-rpm.jpg",
			"lab-disintegration-tester-autobasket.jpg",
			"lab-dissolution-tester-automated.jpg",
			"lab-students-serra-dourada.jpg",
		},
	}
}

// PartitionName returns the name of the class partition for this generation.
func (c Config) PartitionName(class string) string {
	return c.Prefix + "-" + class + "-" + c.Version
}

// PartitionNames lists the current partition names in install order.
func (c Config) PartitionNames() []string {
	return []string{
		c.PartitionName(PartitionStatic),
		c.PartitionName(PartitionDynamic),
		c.PartitionName(PartitionImages),
	}
}

// manifestFor returns the manifest of a partition class.
func (c Config) manifestFor(class string) []string {
	switch class {
	case PartitionStatic:
		return c.Manifests.Static
	case PartitionDynamic:
		return c.Manifests.Scripts
	case PartitionImages:
		return c.Manifests.Images
	}
	return nil
}

// Resolve turns a raw request or manifest URL into the absolute URL used
// as cache identity. Fragments are dropped.
func (c Config) Resolve(raw string) (string, error) {
	base, err := url.Parse(c.Origin)
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	u := base.ResolveReference(ref)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

// Hosts returns the set of origins ("scheme://host") the gateway may fetch
// from: Origin, every host named by an absolute manifest entry, and
// ExtraHosts.
func (c Config) Hosts() map[string]bool {
	hosts := make(map[string]bool)
	add := func(raw string) {
		if h := originOf(raw); h != "" {
			hosts[h] = true
		}
	}
	add(c.Origin)
	for _, class := range []string{PartitionStatic, PartitionDynamic, PartitionImages} {
		for _, raw := range c.manifestFor(class) {
			add(raw)
		}
	}
	for _, raw := range c.ExtraHosts {
		add(raw)
	}
	return hosts
}

// Allows reports whether a resolved URL points at one of Hosts.
func (c Config) Allows(resolved string) bool {
	return c.Hosts()[originOf(resolved)]
}

// originOf returns "scheme://host" of an absolute URL, or "" for relative
// or unparsable ones.
func originOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// Validate checks the config before a generation is installed.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Prefix) == "" {
		errs = append(errs, errors.New("cache prefix is empty"))
	}
	if strings.TrimSpace(c.Version) == "" {
		errs = append(errs, errors.New("cache version is empty"))
	}
	if strings.Contains(c.Prefix, "-") {
		errs = append(errs, fmt.Errorf("cache prefix %q must not contain '-'", c.Prefix))
	}
	u, err := url.Parse(c.Origin)
	if err != nil || !u.IsAbs() || u.Host == "" {
		errs = append(errs, fmt.Errorf("origin %q must be an absolute URL", c.Origin))
	}
	for _, raw := range c.ExtraHosts {
		if originOf(raw) == "" {
			errs = append(errs, fmt.Errorf("extra host %q must be an absolute URL", raw))
		}
	}
	for _, class := range []string{PartitionStatic, PartitionDynamic, PartitionImages} {
		seen := make(map[string]struct{})
		for _, raw := range c.manifestFor(class) {
			if _, dup := seen[raw]; dup {
				errs = append(errs, fmt.Errorf("%s manifest lists %q twice", class, raw))
			}
			seen[raw] = struct{}{}
		}
	}
	return errors.Join(errs...)
}

func (c Config) offlineText() string {
	if c.OfflineText == "" {
		return DefaultOfflineText
	}
	return c.OfflineText
}

func (c Config) imageMissingText() string {
	if c.ImageMissingText == "" {
		return DefaultImageMissingText
	}
	return c.ImageMissingText
}

func (c Config) appDocument() string {
	if c.AppDocument == "" {
		return DefaultAppDocument
	}
	return c.AppDocument
}
